package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/epubtest"
)

func TestBook_Search(t *testing.T) {
	b := openTestBook(t)

	results, err := b.Search(context.Background(), "fox")
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 2, r.ChapterIndex)
	assert.Equal(t, "c3", r.ChapterID)
	assert.Equal(t, "OEBPS/text/c3.xhtml", r.ChapterHref)
	assert.Equal(t, "The End", r.ChapterTitle)
	assert.Equal(t, "fox", r.Match)
	assert.Contains(t, r.Context, "the quick brown fox")
	assert.Equal(t, 25, r.Offset)

	loc, err := cfi.Decode(r.CFI)
	require.NoError(t, err)
	assert.Equal(t, 2, loc.SpineIndex)
	assert.Equal(t, 25, loc.Offset)
}

func TestBook_Search_CaseInsensitiveAcrossChapters(t *testing.T) {
	b := openTestBook(t)

	results, err := b.Search(context.Background(), "  THE ")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].ChapterIndex)
	assert.Equal(t, "the", results[0].Match)
	assert.Equal(t, 2, results[1].ChapterIndex)
}

func TestBook_Search_SkipsScriptAndStyleText(t *testing.T) {
	b := openTestBook(t)

	for _, q := range []string{"alert", "behavior", "steal"} {
		results, err := b.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Empty(t, results, q)
	}
}

func TestBook_Search_BlankQuery(t *testing.T) {
	b := openTestBook(t)

	results, err := b.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestBook_Search_Limit(t *testing.T) {
	b, err := Open(context.Background(), testBook(t), Options{SearchLimit: 1})
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "e")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBook_Search_Cancelled(t *testing.T) {
	b := openTestBook(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := b.Search(ctx, "fox")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestBook_Search_UsesChapterCache(t *testing.T) {
	b := openTestBook(t)

	c, err := b.Chapter(1)
	require.NoError(t, err)

	results, err := b.Search(context.Background(), "second chapter")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, c.Index, results[0].ChapterIndex)
	assert.Equal(t, "Second chapter", results[0].Match)
}

func TestFindMatches(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		n     int
		want  []match
	}{
		{
			name:  "context window with ellipses",
			text:  "aaaa needle bbbb",
			query: "needle",
			n:     2,
			want:  []match{{offset: 5, text: "needle", context: "...a needle b..."}},
		},
		{
			name:  "window reaches both ends",
			text:  "a needle b",
			query: "NEEDLE",
			n:     10,
			want:  []match{{offset: 2, text: "needle", context: "a needle b"}},
		},
		{
			name:  "non-overlapping",
			text:  "aaaa",
			query: "aa",
			n:     0,
			want: []match{
				{offset: 0, text: "aa", context: "aa..."},
				{offset: 2, text: "aa", context: "...aa"},
			},
		},
		{
			name:  "no multi-rune case folding",
			text:  "Ünïcödé ßtraße",
			query: "STRASSE",
			n:     3,
			want:  nil,
		},
		{
			name:  "multibyte match",
			text:  "日本語のテキスト",
			query: "テキスト",
			n:     1,
			want:  []match{{offset: 4, text: "テキスト", context: "...のテキスト"}},
		},
		{
			name:  "negative window",
			text:  "a needle b",
			query: "needle",
			n:     -10,
			want:  []match{{offset: 2, text: "needle", context: "...needle..."}},
		},
		{
			name:  "window larger than text",
			text:  "a needle b",
			query: "needle",
			n:     int(^uint(0) >> 1),
			want:  []match{{offset: 2, text: "needle", context: "a needle b"}},
		},
		{
			name:  "query longer than text",
			text:  "ab",
			query: "abc",
			n:     5,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findMatches(tt.text, tt.query, tt.n))
		})
	}
}

func TestBook_Search_XHTMLEmptyElements(t *testing.T) {
	opf := `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Empty Tags</dc:title></metadata>
  <manifest><item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="c1"/></spine>
</package>`
	chapter := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title/><script type="text/javascript" src="app.js"/></head>
<body><p>the quick brown fox</p></body>
</html>`

	b, err := Open(context.Background(), epubtest.EPUB(t,
		epubtest.File{Name: "OEBPS/content.opf", Body: opf},
		epubtest.File{Name: "OEBPS/c1.xhtml", Body: chapter},
	), Options{})
	require.NoError(t, err)

	c, err := b.Chapter(0)
	require.NoError(t, err)
	assert.Equal(t, "<p>the quick brown fox</p>", strings.TrimSpace(c.HTML))
	assert.Equal(t, "the quick brown fox", c.Text)

	results, err := b.Search(context.Background(), "fox")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 16, results[0].Offset)
}
