package epub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanying/epubreader/internal/epubtest"
)

func TestLoad(t *testing.T) {
	files := append(chapters(),
		epubtest.File{Name: "OEBPS/content.opf", Body: epub3OPF},
		epubtest.File{Name: "OEBPS/nav.xhtml", Body: navXHTML},
	)
	a, err := OpenArchive(epubtest.EPUB(t, files...))
	require.NoError(t, err)

	doc, err := Load(a)
	require.NoError(t, err)

	assert.Equal(t, "Nav Book", doc.Title)
	assert.Equal(t, "", doc.Author())
	assert.Equal(t, "3.0", doc.Version)
	assert.Equal(t, "OEBPS/content.opf", doc.PackagePath)
	assert.Equal(t, 3, doc.ChapterCount())
	assert.Equal(t, NavSourceDocument, doc.NavSource)
	assert.Len(t, doc.TOC, 2)
	assert.Equal(t, EncryptionNone, doc.Encryption)
	assert.False(t, doc.Degraded)
	assert.False(t, doc.MediaOverlays)
	assert.Nil(t, doc.Cover)
	assert.Same(t, a, doc.Archive())

	href, err := doc.ChapterHref(2)
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/text/c3.xhtml", href)

	data, err := doc.ReadChapter(1)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<p>two</p>")

	_, err = doc.ChapterHref(3)
	assert.ErrorIs(t, err, ErrChapterOutOfRange)
	_, err = doc.ReadChapter(-1)
	assert.ErrorIs(t, err, ErrChapterOutOfRange)

	item, ok := doc.Item("nav")
	require.True(t, ok)
	assert.True(t, item.HasProperty("nav"))
}

func TestLoad_DefaultsTitleAndAuthors(t *testing.T) {
	opf := `<package version="2.0"><metadata>
<creator>First</creator><creator> </creator><creator>Second</creator>
</metadata>
<manifest><item id="a" href="a.xhtml" media-type="application/xhtml+xml"/></manifest>
<spine><itemref idref="a"/></spine></package>`

	a, err := OpenArchive(epubtest.EPUB(t,
		epubtest.File{Name: "OEBPS/content.opf", Body: opf},
		epubtest.Chapter("OEBPS/a.xhtml", "A", ""),
	))
	require.NoError(t, err)

	doc, err := Load(a)
	require.NoError(t, err)
	assert.Equal(t, UnknownTitle, doc.Title)
	assert.Equal(t, []string{"First", "Second"}, doc.Authors)
	assert.Equal(t, "First", doc.Author())
}

func TestLoad_Errors(t *testing.T) {
	emptySpine := `<package><metadata><title>T</title></metadata><manifest/><spine/></package>`

	tests := []struct {
		name  string
		files []epubtest.File
		want  error
	}{
		{"no container", []epubtest.File{{Name: "OEBPS/content.opf", Body: emptySpine}}, ErrNoRootFile},
		{"missing package", []epubtest.File{epubtest.Container("OEBPS/content.opf")}, ErrPackageMissing},
		{"unparseable package", []epubtest.File{
			epubtest.Container("OEBPS/content.opf"),
			{Name: "OEBPS/content.opf", Body: "<package><metadata>"},
		}, ErrMalformedPackage},
		{"empty spine", []epubtest.File{
			epubtest.Container("OEBPS/content.opf"),
			{Name: "OEBPS/content.opf", Body: emptySpine},
		}, ErrMalformedPackage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openTestArchive(t, tt.files...)
			_, err := Load(a)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsPackageError(err))
		})
	}
}

func TestLoad_MediaOverlays(t *testing.T) {
	opf := `<package version="3.0"><metadata><title>Audio</title></metadata>
<manifest>
  <item id="a" href="a.xhtml" media-type="application/xhtml+xml" media-overlay="s"/>
  <item id="s" href="a.smil" media-type="application/smil+xml"/>
</manifest>
<spine><itemref idref="a"/></spine></package>`

	a := openTestArchive(t,
		epubtest.Container("content.opf"),
		epubtest.File{Name: "content.opf", Body: opf},
		epubtest.Chapter("a.xhtml", "A", ""),
	)
	doc, err := Load(a)
	require.NoError(t, err)
	assert.True(t, doc.MediaOverlays)
}
