package epub

import (
	"strings"

	"github.com/pkg/errors"
)

// UnknownTitle is the title of a book whose package names none.
const UnknownTitle = "Unknown Title"

const smilMediaType = "application/smil+xml"

// Document is a loaded book. It is read-only once returned by Load or
// LoadFallback.
type Document struct {
	Title       string
	Authors     []string
	Description string
	Publisher   string
	Language    string
	Date        string
	Identifier  string
	Version     string

	Cover *Cover

	Spine         []SpineItem
	Manifest      map[string]ManifestItem
	ManifestOrder []string
	TOC           []NavigationNode
	NavSource     NavSource

	Encryption      Encryption
	FixedLayout     bool
	MediaOverlays   bool
	PageProgression string
	PackagePath     string

	// Degraded is set when the document was produced by the fallback reader.
	Degraded bool

	archive *Archive
}

// Load runs the structured parse: package, navigation, cover and encryption.
// Errors satisfy IsPackageError and mean the caller should use LoadFallback.
func Load(a *Archive) (*Document, error) {
	pkg, err := ParsePackage(a)
	if err != nil {
		return nil, err
	}
	if len(pkg.Spine) == 0 {
		return nil, errors.Wrapf(ErrMalformedPackage, "%s: empty spine", pkg.Path)
	}

	toc, source := ResolveNavigation(pkg, a)

	doc := &Document{
		Title:           pkg.Metadata.Title,
		Authors:         []string{},
		Description:     pkg.Metadata.Description,
		Publisher:       pkg.Metadata.Publisher,
		Language:        pkg.Metadata.Language,
		Date:            pkg.Metadata.Date,
		Identifier:      pkg.Metadata.Identifier,
		Version:         pkg.Version,
		Cover:           ResolveCover(pkg, a),
		Spine:           pkg.Spine,
		Manifest:        pkg.Manifest,
		ManifestOrder:   pkg.ManifestOrder,
		TOC:             toc,
		NavSource:       source,
		Encryption:      InspectEncryption(a),
		FixedLayout:     pkg.Metadata.FixedLayout,
		MediaOverlays:   hasMediaOverlays(pkg),
		PageProgression: pkg.PageProgression,
		PackagePath:     pkg.Path,
		archive:         a,
	}
	if doc.Title == "" {
		doc.Title = UnknownTitle
	}
	for _, c := range pkg.Metadata.Creators {
		doc.Authors = append(doc.Authors, c.Name)
	}

	return doc, nil
}

func hasMediaOverlays(pkg *Package) bool {
	for _, item := range pkg.Items() {
		if item.MediaOverlay != "" || strings.EqualFold(item.MediaType, smilMediaType) {
			return true
		}
	}
	return false
}

// Archive returns the archive the document was loaded from.
func (d *Document) Archive() *Archive {
	return d.archive
}

// Author returns the first author, or "" when there is none.
func (d *Document) Author() string {
	if len(d.Authors) == 0 {
		return ""
	}
	return d.Authors[0]
}

// ChapterCount returns the number of spine items.
func (d *Document) ChapterCount() int {
	return len(d.Spine)
}

// ChapterHref returns the archive path of spine item i.
func (d *Document) ChapterHref(i int) (string, error) {
	if i < 0 || i >= len(d.Spine) {
		return "", errors.Wrapf(ErrChapterOutOfRange, "index %d of %d", i, len(d.Spine))
	}
	return d.Spine[i].Href, nil
}

// ReadChapter returns the raw markup of spine item i.
func (d *Document) ReadChapter(i int) ([]byte, error) {
	href, err := d.ChapterHref(i)
	if err != nil {
		return nil, err
	}
	if d.archive == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s", href)
	}
	return d.archive.Read(href)
}

// Item returns the manifest item with the given id.
func (d *Document) Item(id string) (ManifestItem, bool) {
	item, ok := d.Manifest[id]
	return item, ok
}
