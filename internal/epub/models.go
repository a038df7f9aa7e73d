package epub

import (
	"path"
	"slices"
	"strings"
)

// Package is the parsed root package document (OPF).
type Package struct {
	Path            string // archive path of the package document
	RootDir         string // directory all manifest hrefs are resolved against
	Version         string
	Metadata        Metadata
	Manifest        map[string]ManifestItem // id -> item
	ManifestOrder   []string                // ids in document order
	Spine           []SpineItem
	NCXPath         string
	Guide           []GuideReference
	PageProgression string
}

// Metadata represents the metadata section of the OPF
type Metadata struct {
	Title       string
	Creators    []Creator
	Language    string
	Identifier  string
	Publisher   string
	Date        string
	Description string
	Subjects    []string
	Rights      string
	CoverID     string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
	FixedLayout bool
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name   string
	Role   string // e.g., "aut" for author, "edt" for editor
	FileAs string
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID           string
	Href         string // archive path, decoded and joined with the root dir
	MediaType    string
	Properties   []string
	MediaOverlay string
}

// SpineItem is a resolved itemref. Its index in Package.Spine is the chapter
// index used by navigation, search and CFIs.
type SpineItem struct {
	IDRef     string
	Href      string
	MediaType string
	Linear    bool
}

// GuideReference represents an EPUB 2 guide reference.
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

// HasProperty reports whether the item declares the given property.
func (m ManifestItem) HasProperty(prop string) bool {
	return slices.ContainsFunc(m.Properties, func(p string) bool {
		return strings.EqualFold(p, prop)
	})
}

// IsImage reports whether the item is an image resource.
func (m ManifestItem) IsImage() bool {
	return isImageMediaType(m.MediaType)
}

// IsXHTML reports whether the item is a content document.
func (m ManifestItem) IsXHTML() bool {
	return isXHTMLMediaType(m.MediaType)
}

// IsFont reports whether the item is an embedded font.
func (m ManifestItem) IsFont() bool {
	return isFontMediaType(m.MediaType) || isFontPath(m.Href)
}

// Items returns the manifest in document order.
func (p *Package) Items() []ManifestItem {
	items := make([]ManifestItem, 0, len(p.ManifestOrder))
	for _, id := range p.ManifestOrder {
		if item, ok := p.Manifest[id]; ok {
			items = append(items, item)
		}
	}
	return items
}

// FindByHref returns the manifest item whose href resolves to target.
func (p *Package) FindByHref(target string) (ManifestItem, bool) {
	target = normalizePath(target)
	for _, item := range p.Items() {
		if item.Href == target {
			return item, true
		}
	}
	return ManifestItem{}, false
}

// isImageMediaType checks if a media type is an image, SVG included.
func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// isXHTMLMediaType checks if a media type indicates an XHTML content file.
func isXHTMLMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.Contains(mt, "xhtml") || strings.Contains(mt, "html")
}

func isFontMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.HasPrefix(mt, "font/") ||
		strings.Contains(mt, "font-woff") ||
		strings.Contains(mt, "opentype") ||
		strings.Contains(mt, "truetype") ||
		strings.Contains(mt, "vnd.ms-fontobject")
}

var fontExtensions = map[string]bool{
	".otf":   true,
	".ttf":   true,
	".woff":  true,
	".woff2": true,
	".eot":   true,
}

func isFontPath(p string) bool {
	return fontExtensions[strings.ToLower(path.Ext(p))]
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".bmp":  true,
}

func isImagePath(p string) bool {
	return imageExtensions[strings.ToLower(path.Ext(p))]
}

var contentExtensions = map[string]bool{
	".xhtml": true,
	".html":  true,
	".htm":   true,
}

func isContentPath(p string) bool {
	return contentExtensions[strings.ToLower(path.Ext(p))]
}
