// Package engine opens EPUB files into books that can be read chapter by
// chapter, searched and addressed with CFIs.
package engine

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/yuanying/epubreader/internal/cfi"
	"github.com/yuanying/epubreader/internal/epub"
	"github.com/yuanying/epubreader/internal/media"
)

// Book is an opened document together with its chapter caches. It is safe
// for concurrent use.
type Book struct {
	doc    *epub.Document
	format FormatInfo
	opts   Options

	mu       sync.Mutex
	chapters map[int]*Chapter
	texts    map[int]string
}

// Open loads a book from bytes. Structural problems in the package are not
// errors: the fallback reader's reduced document is used instead. Invalid
// options wrap ErrInvalidOptions; every other error wraps
// epub.ErrCorruptArchive.
func Open(ctx context.Context, data []byte, opts Options) (*Book, error) {
	log := logger.FromContext(ctx)

	if err := opts.setDefaults(); err != nil {
		return nil, err
	}

	format, err := DetectFormat(data)
	if err != nil {
		return nil, errors.Wrapf(epub.ErrCorruptArchive, "%v", err)
	}

	a, err := epub.OpenArchiveLimit(data, opts.MaxEntrySize)
	if err != nil {
		return nil, err
	}
	if err := a.CheckMimetype(); err != nil {
		log.Debug("mimetype check failed", logger.Data{"error": err.Error()})
	}

	doc, err := loadStructured(a)
	if err != nil {
		log.Warn("package parse failed, using fallback reader", logger.Data{
			"error":   err.Error(),
			"entries": a.Len(),
		})
		doc = epub.LoadFallback(a)
	}

	log.Debug("book opened", logger.Data{
		"format":     format.Format,
		"title":      doc.Title,
		"chapters":   doc.ChapterCount(),
		"nav_source": doc.NavSource,
		"encryption": doc.Encryption.String(),
		"degraded":   doc.Degraded,
	})

	return &Book{
		doc:      doc,
		format:   format,
		opts:     opts,
		chapters: map[int]*Chapter{},
		texts:    map[int]string{},
	}, nil
}

// OpenFile reads path and opens it with Open.
func OpenFile(ctx context.Context, name string, opts Options) (*Book, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Open(ctx, data, opts)
}

// loadStructured runs the structured parse, turning a panic into an error so
// that it also selects the fallback reader.
func loadStructured(a *epub.Archive) (doc *epub.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, errors.Errorf("panic during package parse: %v", r)
		}
	}()
	return epub.Load(a)
}

// Document returns the loaded document.
func (b *Book) Document() *epub.Document {
	return b.doc
}

// Format returns the handler the book was opened with.
func (b *Book) Format() FormatInfo {
	return b.format
}

// Encryption returns the book's protection classification.
func (b *Book) Encryption() epub.Encryption {
	return b.doc.Encryption
}

// CoverImage returns the cover image bytes, or nil when there is none.
func (b *Book) CoverImage() []byte {
	if b.doc.Cover == nil {
		return nil
	}
	return b.doc.Cover.Data
}

// CoverThumbnail returns the cover scaled to maxWidth (the configured width
// when maxWidth is not positive) and its media type.
func (b *Book) CoverThumbnail(maxWidth int) ([]byte, string, error) {
	if b.doc.Cover == nil {
		return nil, "", errors.Wrap(epub.ErrNotFound, "book has no cover")
	}
	if maxWidth <= 0 {
		maxWidth = b.opts.ThumbnailWidth
	}
	return media.Thumbnail(b.doc.Cover.Data, maxWidth)
}

// Locate decodes a CFI and returns it with the spine item it addresses.
func (b *Book) Locate(s string) (cfi.Location, epub.SpineItem, error) {
	loc, err := cfi.Decode(s)
	if err != nil {
		return cfi.Location{}, epub.SpineItem{}, err
	}
	if loc.SpineIndex >= len(b.doc.Spine) {
		return loc, epub.SpineItem{}, errors.Wrapf(epub.ErrChapterOutOfRange, "index %d of %d", loc.SpineIndex, len(b.doc.Spine))
	}
	return loc, b.doc.Spine[loc.SpineIndex], nil
}

// Resume maps a saved position onto the book. A malformed CFI, or one past
// the last spine item, resumes at the start of the first chapter.
func (b *Book) Resume(s string) (cfi.Location, epub.SpineItem, error) {
	loc := cfi.DecodeOrStart(s)
	if loc.SpineIndex >= len(b.doc.Spine) {
		loc = cfi.New(0)
	}
	if len(b.doc.Spine) == 0 {
		return loc, epub.SpineItem{}, errors.Wrap(epub.ErrChapterOutOfRange, "book has no chapters")
	}
	return loc, b.doc.Spine[loc.SpineIndex], nil
}

// ChapterTitle returns the table of contents title of spine item i, falling
// back to one derived from its file name.
func (b *Book) ChapterTitle(i int) string {
	href, err := b.doc.ChapterHref(i)
	if err != nil {
		return ""
	}
	if title := findTitle(b.doc.TOC, href); title != "" {
		return title
	}
	return epub.TitleFromHref(href)
}

func findTitle(nodes []epub.NavigationNode, href string) string {
	for _, n := range nodes {
		target, _, _ := strings.Cut(n.Href, "#")
		if target == href {
			return n.Title
		}
		if t := findTitle(n.Children, href); t != "" {
			return t
		}
	}
	return ""
}
