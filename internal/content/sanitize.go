package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// removedElements are dropped together with their content.
var removedElements = "script, style"

// urlAttrs are attributes holding a URL that may carry a script scheme.
var urlAttrs = map[string]bool{
	"href":       true,
	"src":        true,
	"action":     true,
	"formaction": true,
	"xlink:href": true,
	"background": true,
	"poster":     true,
	"data":       true,
}

var scriptSchemes = []string{"javascript:", "vbscript:"}

// Sanitize removes executable content from a content document and returns
// the inner markup of its body, or the whole cleaned document when the
// source has no body. If the markup cannot be processed the input is
// returned unchanged.
func Sanitize(raw string) (out string) {
	defer func() {
		if recover() != nil {
			out = raw
		}
	}()

	doc, err := parseDocument([]byte(raw))
	if err != nil {
		return raw
	}
	SanitizeDocument(doc)
	html, err := documentHTML(doc, bodyTagRe.MatchString(raw))
	if err != nil {
		return raw
	}
	return html
}

// Sanitize strips script and style elements, event handler attributes and
// script URLs from the page in place.
func (p *Page) Sanitize() {
	SanitizeDocument(p.Document)
}

// SanitizeDocument is Sanitize for an already parsed document.
func SanitizeDocument(doc *goquery.Document) {
	doc.Find(removedElements).Remove()

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			if strings.HasPrefix(key, "on") {
				continue
			}
			if urlAttrs[key] && isScriptURL(attr.Val) {
				continue
			}
			kept = append(kept, attr)
		}
		node.Attr = kept
	})
}

// isScriptURL reports whether v uses a script scheme, ignoring case and the
// whitespace and control characters browsers skip.
func isScriptURL(v string) bool {
	var b strings.Builder
	for _, r := range v {
		if r <= ' ' {
			continue
		}
		b.WriteRune(r)
	}
	s := strings.ToLower(b.String())
	for _, scheme := range scriptSchemes {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}
