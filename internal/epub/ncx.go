package epub

import (
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
)

const ncxMediaType = "application/x-dtbncx+xml"

// ncxDocument represents the root <ncx> element of an NCX file.
type ncxDocument struct {
	DocTitle struct {
		Text string `xml:"text"`
	} `xml:"docTitle"`
	NavMap struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

// ncxNavPoint represents a <navPoint> element which may contain nested navPoints.
type ncxNavPoint struct {
	ID       string `xml:"id,attr"`
	NavLabel struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

// findNCXPath returns the NCX named by the spine toc attribute, else the first
// manifest item that looks like an NCX.
func findNCXPath(pkg *Package) string {
	if pkg.NCXPath != "" {
		return pkg.NCXPath
	}
	for _, item := range pkg.Items() {
		if strings.EqualFold(item.MediaType, ncxMediaType) || strings.EqualFold(path.Ext(item.Href), ".ncx") {
			return item.Href
		}
	}
	return ""
}

// navFromNCX is the EPUB 2 navigation strategy.
func navFromNCX(pkg *Package, files FileReader) []NavigationNode {
	ncxPath := findNCXPath(pkg)
	if ncxPath == "" {
		return nil
	}
	data, err := files.Read(ncxPath)
	if err != nil {
		return nil
	}
	nodes, err := parseNCX(data, ncxPath)
	if err != nil {
		return nil
	}
	return nodes
}

// parseNCX parses NCX data into navigation nodes. Hrefs are resolved against
// the NCX file's directory.
func parseNCX(data []byte, ncxPath string) ([]NavigationNode, error) {
	var doc ncxDocument
	if err := newXMLDecoder(stripBOM(data)).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "parse NCX")
	}

	dir := path.Dir(ncxPath)
	if dir == "." {
		dir = ""
	}
	counter := 0
	return convertNavPoints(doc.NavMap.NavPoints, dir, 0, &counter), nil
}

// convertNavPoints walks navPoints depth first. Points without a label get a
// numbered title; points without a content source keep an empty href so the
// numbering of the remaining entries is unaffected.
func convertNavPoints(points []ncxNavPoint, dir string, level int, counter *int) []NavigationNode {
	nodes := make([]NavigationNode, 0, len(points))
	for _, np := range points {
		*counter++
		node := NavigationNode{
			ID:    strings.TrimSpace(np.ID),
			Title: collapseSpace(np.NavLabel.Text),
			Level: level,
		}
		if node.Title == "" {
			node.Title = fmt.Sprintf("Chapter %d", *counter)
		}
		if src := strings.TrimSpace(np.Content.Src); src != "" {
			node.Href = resolveHref(dir, src)
		}
		node.Children = convertNavPoints(np.Children, dir, level+1, counter)
		nodes = append(nodes, node)
	}
	return nodes
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
