package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanying/epubreader/internal/epubtest"
)

const epub3OPF = `<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Nav Book</dc:title></metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="c1" href="text/c1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/c2.xhtml" media-type="application/xhtml+xml"/>
    <item id="c3" href="text/c3.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="c1"/>
    <itemref idref="c2"/>
    <itemref idref="c3"/>
  </spine>
</package>`

const navXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<body>
  <nav epub:type="landmarks"><ol><li><a href="text/c1.xhtml">Begin</a></li></ol></nav>
  <nav epub:type="toc" id="toc">
    <ol>
      <li id="n1"><a href="text/c1.xhtml">Part   One</a>
        <ol><li><a href="text/c2.xhtml#sec">Section</a></li></ol>
      </li>
      <li><a href="text/c3.xhtml"></a></li>
    </ol>
  </nav>
</body>
</html>`

const tocNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="p1"><navLabel><text>From NCX</text></navLabel><content src="text/c1.xhtml"/>
      <navPoint id="p2"><navLabel><text></text></navLabel><content src="text/c2.xhtml"/></navPoint>
    </navPoint>
    <navPoint id="p3"><navLabel><text>No Source</text></navLabel><content src=""/></navPoint>
  </navMap>
</ncx>`

func chapters() []epubtest.File {
	return []epubtest.File{
		epubtest.Chapter("OEBPS/text/c1.xhtml", "One", "<p>one</p>"),
		epubtest.Chapter("OEBPS/text/c2.xhtml", "Two", "<p>two</p>"),
		epubtest.Chapter("OEBPS/text/c3.xhtml", "Three", "<p>three</p>"),
	}
}

func parseTestPackage(t *testing.T, files ...epubtest.File) (*Package, *Archive) {
	t.Helper()
	a, err := OpenArchive(epubtest.EPUB(t, files...))
	require.NoError(t, err)
	pkg, err := ParsePackage(a)
	require.NoError(t, err)
	return pkg, a
}

func TestResolveNavigation_NavDocument(t *testing.T) {
	files := append(chapters(),
		epubtest.File{Name: "OEBPS/content.opf", Body: epub3OPF},
		epubtest.File{Name: "OEBPS/nav.xhtml", Body: navXHTML},
		epubtest.File{Name: "OEBPS/toc.ncx", Body: tocNCX},
	)
	pkg, a := parseTestPackage(t, files...)
	require.Len(t, pkg.Spine, 3)

	toc, source := ResolveNavigation(pkg, a)
	assert.Equal(t, NavSourceDocument, source)
	require.Len(t, toc, 2)
	require.Len(t, toc[0].Children, 1)

	assert.Equal(t, "n1", toc[0].ID)
	assert.Equal(t, "Part One", toc[0].Title)
	assert.Equal(t, "OEBPS/text/c1.xhtml", toc[0].Href)
	assert.Equal(t, 0, toc[0].Level)

	child := toc[0].Children[0]
	assert.Equal(t, "Section", child.Title)
	assert.Equal(t, "OEBPS/text/c2.xhtml#sec", child.Href)
	assert.Equal(t, 1, child.Level)
	assert.Empty(t, child.Children)

	assert.Equal(t, "Chapter 3", toc[1].Title)
	assert.Equal(t, "OEBPS/text/c3.xhtml", toc[1].Href)
}

func TestResolveNavigation_FallsBackToNCX(t *testing.T) {
	files := append(chapters(),
		epubtest.File{Name: "OEBPS/content.opf", Body: epub3OPF},
		epubtest.File{Name: "OEBPS/nav.xhtml", Body: `<html><body><p>no nav here</p></body></html>`},
		epubtest.File{Name: "OEBPS/toc.ncx", Body: tocNCX},
	)
	pkg, a := parseTestPackage(t, files...)

	toc, source := ResolveNavigation(pkg, a)
	assert.Equal(t, NavSourceNCX, source)
	require.Len(t, toc, 2)

	assert.Equal(t, "From NCX", toc[0].Title)
	require.Len(t, toc[0].Children, 1)
	assert.Equal(t, "Chapter 2", toc[0].Children[0].Title)
	assert.Equal(t, "OEBPS/text/c2.xhtml", toc[0].Children[0].Href)

	assert.Equal(t, "No Source", toc[1].Title)
	assert.Equal(t, "", toc[1].Href)
}

func TestResolveNavigation_SpineSynthetic(t *testing.T) {
	files := append(chapters(), epubtest.File{Name: "OEBPS/content.opf", Body: epub3OPF})
	pkg, a := parseTestPackage(t, files...)

	toc, source := ResolveNavigation(pkg, a)
	assert.Equal(t, NavSourceSpine, source)
	require.Len(t, toc, len(pkg.Spine))
	for i, node := range toc {
		assert.Equal(t, pkg.Spine[i].Href, node.Href)
		assert.Equal(t, pkg.Spine[i].IDRef, node.ID)
		assert.NotNil(t, node.Children)
	}
	assert.Equal(t, "C1", toc[0].Title)
}

func TestResolveNavigation_EmptySpine(t *testing.T) {
	toc, source := ResolveNavigation(&Package{Manifest: map[string]ManifestItem{}}, nil)
	assert.Equal(t, NavSourceSpine, source)
	assert.NotNil(t, toc)
	assert.Empty(t, toc)
}

func TestParseNavDocument_UntypedNavAndSpanHeadings(t *testing.T) {
	doc := `<html><body><nav><ol>
  <li><span>Heading</span>
    <ol><li><a href="a.xhtml">A</a></li><li><a href="b.xhtml">B</a></li></ol>
  </li>
</ol></nav></body></html>`

	nodes, err := parseNavDocument([]byte(doc), "OPS/nav/nav.xhtml")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Heading", nodes[0].Title)
	assert.Equal(t, "OPS/nav/a.xhtml", nodes[0].Href)
	require.Len(t, nodes[0].Children, 2)
	assert.Equal(t, "OPS/nav/b.xhtml", nodes[0].Children[1].Href)
}

func TestTitleFromHref(t *testing.T) {
	tests := map[string]string{
		"text/chapter_one-a.xhtml": "Chapter One A",
		"OEBPS/intro.html#top":     "Intro",
		"ch01.xhtml":               "Ch01",
		"__.xhtml":                 "Untitled",
		"":                         "Untitled",
	}
	for in, want := range tests {
		assert.Equal(t, want, TitleFromHref(in), in)
	}
}

func TestResolveNavigation_NavDocumentWithEmptyTitle(t *testing.T) {
	nav := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title/></head>
<body><nav epub:type="toc"><ol><li><a href="text/c1.xhtml">Only</a></li></ol></nav></body>
</html>`
	files := append(chapters(),
		epubtest.File{Name: "OEBPS/content.opf", Body: epub3OPF},
		epubtest.File{Name: "OEBPS/nav.xhtml", Body: nav},
		epubtest.File{Name: "OEBPS/toc.ncx", Body: tocNCX},
	)
	pkg, a := parseTestPackage(t, files...)

	toc, source := ResolveNavigation(pkg, a)
	assert.Equal(t, NavSourceDocument, source)
	require.Len(t, toc, 1)
	assert.Equal(t, "Only", toc[0].Title)
}
