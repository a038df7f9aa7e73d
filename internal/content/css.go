package content

import (
	"path"
	"regexp"
	"strings"
)

// maxImportDepth bounds @import chains.
const maxImportDepth = 8

// importRe matches an @import rule and captures its target.
var importRe = regexp.MustCompile(`(?i)@import\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?[^;]*;`)

// urlRe matches a url() reference and captures its target.
var urlRe = regexp.MustCompile(`(?i)url\(\s*["']?([^"')]*?)["']?\s*\)`)

// declarationRe matches a CSS property-value pair.
var declarationRe = regexp.MustCompile(`(?i)^\s*([\w-]+)\s*:\s*(.*?)\s*;?\s*$`)

// Fetcher reads a stylesheet by archive path.
type Fetcher func(name string) ([]byte, error)

// CombineCSS concatenates the linked stylesheets, in order, followed by the
// inline ones. @import rules are inlined, url() references are rewritten to
// archive paths and executable declarations are dropped. Stylesheets that
// cannot be fetched are skipped.
func CombineCSS(links, inline []string, pageDir string, fetch Fetcher) string {
	c := &combiner{fetch: fetch, seen: map[string]bool{}}
	for _, href := range links {
		c.addFile(href, 0)
	}
	for _, css := range inline {
		c.add(css, pageDir, 0)
	}
	return strings.TrimSpace(c.out.String())
}

type combiner struct {
	fetch Fetcher
	seen  map[string]bool
	out   strings.Builder
}

func (c *combiner) addFile(href string, depth int) {
	if c.seen[href] || depth > maxImportDepth || c.fetch == nil {
		return
	}
	c.seen[href] = true
	data, err := c.fetch(href)
	if err != nil {
		return
	}
	c.add(string(data), path.Dir(href), depth)
}

func (c *combiner) add(css, dir string, depth int) {
	css = strings.TrimPrefix(css, "\ufeff")
	css = importRe.ReplaceAllStringFunc(css, func(rule string) string {
		m := importRe.FindStringSubmatch(rule)
		if resolved, local := ResolvePath(dir, m[1]); local {
			c.addFile(resolved, depth+1)
		}
		return ""
	})
	css = RewriteURLs(css, dir)
	css = ScrubCSS(css)
	if css = strings.TrimSpace(css); css != "" {
		c.out.WriteString(css)
		c.out.WriteString("\n")
	}
}

// RewriteURLs resolves every local url() reference against dir.
func RewriteURLs(css, dir string) string {
	return urlRe.ReplaceAllStringFunc(css, func(match string) string {
		m := urlRe.FindStringSubmatch(match)
		resolved, local := ResolvePath(dir, m[1])
		if !local {
			return match
		}
		return `url("` + resolved + `")`
	})
}

// ScrubCSS removes executable declarations (expression(), behavior and
// -moz-binding) declaration by declaration, preserving structure. Comments and
// string literals are passed through.
func ScrubCSS(css string) string {
	if css == "" {
		return ""
	}

	var result strings.Builder
	i := 0

	for i < len(css) {
		ch := css[i]

		if ch == '/' && i+1 < len(css) && css[i+1] == '*' {
			end := strings.Index(css[i+2:], "*/")
			if end == -1 {
				result.WriteString(css[i:])
				break
			}
			end += i + 2 + 2
			result.WriteString(css[i:end])
			i = end
			continue
		}

		if ch == '{' || ch == '}' || ch == ';' {
			result.WriteByte(ch)
			i++
			continue
		}

		declEnd := findDeclarationEnd(css, i)
		if declEnd > i {
			decl := css[i:declEnd]
			if m := declarationRe.FindStringSubmatch(strings.TrimSpace(decl)); m != nil {
				if isExecutableDeclaration(m[1], m[2]) {
					i = declEnd
					if i < len(css) && css[i] == ';' {
						i++
					}
					continue
				}
				result.WriteString(decl)
				i = declEnd
				continue
			}
		}

		result.WriteByte(ch)
		i++
	}

	return result.String()
}

// findDeclarationEnd finds the end of a CSS declaration starting at pos.
// Returns the position of the terminating semicolon or brace. String
// literals inside values are skipped.
func findDeclarationEnd(css string, pos int) int {
	for i := pos; i < len(css); i++ {
		switch css[i] {
		case ';', '{', '}':
			return i
		case '"', '\'':
			quote := css[i]
			i++
			for i < len(css) {
				if css[i] == '\\' {
					i++
				} else if css[i] == quote {
					break
				}
				i++
			}
		}
	}
	return len(css)
}

func isExecutableDeclaration(property, value string) bool {
	p := strings.ToLower(strings.TrimSpace(property))
	v := strings.ToLower(value)

	switch p {
	case "behavior", "-ms-behavior", "-moz-binding":
		return true
	}
	return strings.Contains(v, "expression(") || strings.Contains(v, "javascript:")
}
