package content

import (
	"bytes"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

var (
	bodyTagRe = regexp.MustCompile(`(?i)<body[\s>/]`)

	// selfClosingRe matches an XML empty-element tag; quoted attribute
	// values may contain '>' and '/'.
	selfClosingRe = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9:_.-]*)((?:\s+[^\s/>=]+(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]+))?)*)\s*/>`)
)

// voidElements never have content in HTML, so "<br/>" parses as written.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// Page is a parsed content document whose resource references have been
// rewritten to archive paths.
type Page struct {
	Href        string            // archive path of the document
	Document    *goquery.Document // parsed markup
	Stylesheets []string          // linked stylesheets, archive paths in link order
	InlineCSS   []string          // contents of <style> elements
	Images      []string          // referenced images, archive paths, deduplicated

	hasBody bool
}

// Parse parses a content document. href is its archive path; relative
// references are resolved against its directory.
func Parse(href string, data []byte) (*Page, error) {
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	p := &Page{
		Href:        href,
		Document:    doc,
		Stylesheets: []string{},
		InlineCSS:   []string{},
		Images:      []string{},
		hasBody:     bodyTagRe.Match(data),
	}

	baseDir := path.Dir(href)
	seen := map[string]bool{}
	addImage := func(ref string) {
		if !seen[ref] {
			seen[ref] = true
			p.Images = append(p.Images, ref)
		}
	}

	doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if !strings.Contains(strings.ToLower(rel), "stylesheet") {
			return
		}
		if h, ok := s.Attr("href"); ok {
			if resolved, local := ResolvePath(baseDir, h); local {
				s.SetAttr("href", resolved)
				p.Stylesheets = append(p.Stylesheets, resolved)
			}
		}
	})

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		if css := strings.TrimSpace(s.Text()); css != "" {
			p.InlineCSS = append(p.InlineCSS, css)
		}
	})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if resolved, local := ResolvePath(baseDir, src); local {
				s.SetAttr("src", resolved)
				addImage(resolved)
			}
		}
	})

	// SVG <image> keeps its namespace prefix out of the attribute key.
	doc.Find("image").Each(func(_ int, s *goquery.Selection) {
		for i, attr := range s.Nodes[0].Attr {
			if attr.Key != "href" {
				continue
			}
			if resolved, local := ResolvePath(baseDir, attr.Val); local {
				s.Nodes[0].Attr[i].Val = resolved
				addImage(resolved)
			}
		}
	})

	return p, nil
}

// HTML returns the inner markup of <body> when the source document had one,
// else the whole document.
func (p *Page) HTML() (string, error) {
	return documentHTML(p.Document, p.hasBody)
}

func documentHTML(doc *goquery.Document, hasBody bool) (string, error) {
	if hasBody {
		if body := doc.Find("body").First(); body.Length() > 0 {
			return body.Html()
		}
	}
	return doc.Html()
}

// parseDocument parses markup, decoding it first when it is not UTF-8.
// XHTML empty-element tags are expanded first: the HTML parser ignores the
// trailing slash, so "<title/>" would otherwise swallow the rest of the
// document as title text.
func parseDocument(data []byte) (*goquery.Document, error) {
	var r io.Reader = bytes.NewReader(ExpandSelfClosing(data))
	if !utf8.Valid(data) {
		cr, err := charset.NewReader(r, "text/html")
		if err != nil {
			return nil, errors.Wrap(err, "detect charset")
		}
		r = cr
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse content document")
	}
	return doc, nil
}

// ExpandSelfClosing rewrites "<x .../>" as "<x ...></x>" for every element
// that is not void in HTML.
func ExpandSelfClosing(data []byte) []byte {
	if !bytes.Contains(data, []byte("/>")) {
		return data
	}
	return selfClosingRe.ReplaceAllFunc(data, func(tag []byte) []byte {
		m := selfClosingRe.FindSubmatch(tag)
		name := m[1]
		if voidElements[strings.ToLower(string(name))] {
			return tag
		}
		out := make([]byte, 0, len(tag)+len(name)+3)
		out = append(out, '<')
		out = append(out, name...)
		out = append(out, m[2]...)
		out = append(out, "></"...)
		out = append(out, name...)
		return append(out, '>')
	})
}

// Dir returns the directory of the page's archive path.
func (p *Page) Dir() string {
	return path.Dir(p.Href)
}

// ResolvePath resolves ref against baseDir and reports whether it names a
// local resource. Remote URLs, data URIs and bare fragments are returned
// unchanged with local set to false.
func ResolvePath(baseDir, ref string) (resolved string, local bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ref, false
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref, false
	}

	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	ref = strings.ReplaceAll(ref, "\\", "/")

	var joined string
	if strings.HasPrefix(ref, "/") || baseDir == "" || baseDir == "." {
		joined = path.Clean(strings.TrimLeft(ref, "/"))
	} else {
		joined = path.Clean(path.Join(baseDir, ref))
	}
	if joined == "." || joined == ".." || strings.HasPrefix(joined, "../") {
		return ref, false
	}
	return joined, true
}
