package epub

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubreader/internal/content"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NavigationNode is one entry of the table of contents.
type NavigationNode struct {
	ID       string
	Title    string
	Href     string // archive path, may carry a #fragment
	Level    int    // nesting depth, 0 at the top
	Children []NavigationNode
}

// NavSource names the strategy that produced a table of contents.
type NavSource string

const (
	NavSourceDocument NavSource = "nav"
	NavSourceNCX      NavSource = "ncx"
	NavSourceSpine    NavSource = "spine"
)

// FileReader reads archive entries by href.
type FileReader interface {
	Read(name string) ([]byte, error)
}

type navStrategy struct {
	source  NavSource
	resolve func(pkg *Package, files FileReader) []NavigationNode
}

// navStrategies is tried in order; the first non-empty result wins.
var navStrategies = []navStrategy{
	{NavSourceDocument, navFromDocument},
	{NavSourceNCX, navFromNCX},
	{NavSourceSpine, func(pkg *Package, _ FileReader) []NavigationNode { return SpineTOC(pkg.Spine) }},
}

// ResolveNavigation builds the table of contents from the best source the
// package offers. It never fails; a package with an empty spine yields an
// empty, non-nil list.
func ResolveNavigation(pkg *Package, files FileReader) ([]NavigationNode, NavSource) {
	for _, s := range navStrategies {
		if nodes := s.resolve(pkg, files); len(nodes) > 0 {
			return nodes, s.source
		}
	}
	return []NavigationNode{}, NavSourceSpine
}

// findNavPath returns the href of the EPUB 3 navigation document.
func findNavPath(pkg *Package) string {
	for _, item := range pkg.Items() {
		if item.HasProperty("nav") {
			return item.Href
		}
	}
	return ""
}

func navFromDocument(pkg *Package, files FileReader) []NavigationNode {
	navPath := findNavPath(pkg)
	if navPath == "" {
		return nil
	}
	data, err := files.Read(navPath)
	if err != nil {
		return nil
	}
	nodes, err := parseNavDocument(data, navPath)
	if err != nil {
		return nil
	}
	return nodes
}

// parseNavDocument extracts the toc list of an EPUB 3 navigation document.
// When no nav element is typed "toc" the first nav element is used.
func parseNavDocument(data []byte, navPath string) ([]NavigationNode, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content.ExpandSelfClosing(stripBOM(data))))
	if err != nil {
		return nil, err
	}

	navs := doc.Find("nav")
	toc := navs.FilterFunction(func(_ int, s *goquery.Selection) bool {
		t, _ := s.Attr("epub:type")
		for _, v := range strings.Fields(t) {
			if v == "toc" {
				return true
			}
		}
		return false
	}).First()
	if toc.Length() == 0 {
		toc = navs.First()
	}

	dir := path.Dir(navPath)
	if dir == "." {
		dir = ""
	}
	counter := 0
	return convertNavList(toc.Find("ol").First(), dir, 0, &counter), nil
}

func convertNavList(ol *goquery.Selection, dir string, level int, counter *int) []NavigationNode {
	nodes := []NavigationNode{}
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		*counter++
		n := *counter

		label := li.ChildrenFiltered("a").First()
		if label.Length() == 0 {
			label = li.ChildrenFiltered("span").First()
		}
		link := label
		if !link.Is("a") {
			link = label.Find("a").First()
		}

		node := NavigationNode{
			Title: collapseSpace(label.Text()),
			Level: level,
		}
		node.ID, _ = li.Attr("id")
		if node.ID == "" {
			node.ID, _ = link.Attr("id")
		}
		if href, ok := link.Attr("href"); ok && strings.TrimSpace(href) != "" {
			node.Href = resolveHref(dir, href)
		}
		node.Children = convertNavList(li.ChildrenFiltered("ol").First(), dir, level+1, counter)

		if node.Title == "" {
			node.Title = fmt.Sprintf("Chapter %d", n)
		}
		if node.Href == "" {
			node.Href = firstHref(node.Children)
		}
		nodes = append(nodes, node)
	})
	return nodes
}

func firstHref(nodes []NavigationNode) string {
	for _, n := range nodes {
		if n.Href != "" {
			return n.Href
		}
		if h := firstHref(n.Children); h != "" {
			return h
		}
	}
	return ""
}

// SpineTOC synthesizes a flat table of contents with one node per spine item.
func SpineTOC(spine []SpineItem) []NavigationNode {
	nodes := make([]NavigationNode, 0, len(spine))
	for _, item := range spine {
		nodes = append(nodes, NavigationNode{
			ID:       item.IDRef,
			Title:    TitleFromHref(item.Href),
			Href:     item.Href,
			Children: []NavigationNode{},
		})
	}
	return nodes
}

// TitleFromHref derives a display title from a file name:
// "text/chapter_one-a.xhtml" becomes "Chapter One A".
func TitleFromHref(href string) string {
	p, _ := splitFragment(href)
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = collapseSpace(base)
	if base == "" || base == "." || base == "/" {
		return "Untitled"
	}
	return cases.Title(language.Und).String(base)
}
