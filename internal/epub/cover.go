package epub

import (
	"bytes"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubreader/internal/content"
	"github.com/yuanying/epubreader/internal/media"
)

// Cover detection methods, in the order they are tried.
const (
	CoverMethodProperty = "properties"
	CoverMethodMeta     = "meta"
	CoverMethodGuide    = "guide"
	CoverMethodKeyword  = "keyword"
	CoverMethodFirst    = "first-image"
	CoverMethodArchive  = "archive"
	CoverMethodFilename = "filename"
)

// Cover is a resolved cover image.
type Cover struct {
	Data      []byte
	MediaType string
	Href      string
	Method    string
	Width     int // zero when the dimensions cannot be read
	Height    int
}

// newCover sniffs data for its dimensions, and for its media type when
// mediaType is empty.
func newCover(data []byte, mediaType, href, method string) *Cover {
	info := media.Inspect(data)
	if mediaType == "" {
		mediaType = info.MediaType
	}
	return &Cover{
		Data:      data,
		MediaType: mediaType,
		Href:      href,
		Method:    method,
		Width:     info.Width,
		Height:    info.Height,
	}
}

var coverKeywords = []string{
	"cover", "cover-image", "cover_image",
	"titlepage", "title-page", "title_page",
	"front", "frontcover",
}

// ResolveCover locates the cover image. Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0); a cover page resolves to its first image
//  3. guide type="cover"
//  4. keyword match on image id or file name
//  5. first image in the manifest
//  6. any image in the archive
//
// A method whose target cannot be read falls through to the next one. Returns
// nil only when the archive holds no image at all.
func ResolveCover(pkg *Package, a *Archive) *Cover {
	images := []ManifestItem{}
	for _, item := range pkg.Items() {
		if item.IsImage() {
			images = append(images, item)
		}
	}

	for _, item := range pkg.Items() {
		if item.HasProperty("cover-image") {
			if c := readCover(a, item.Href, item.MediaType, CoverMethodProperty); c != nil {
				return c
			}
		}
	}

	if item, ok := pkg.Manifest[pkg.Metadata.CoverID]; ok {
		href := item.Href
		mediaType := item.MediaType
		if item.IsXHTML() {
			href, mediaType = coverPageImage(a, item.Href), ""
		}
		if c := readCover(a, href, mediaType, CoverMethodMeta); c != nil {
			return c
		}
	}

	for _, ref := range pkg.Guide {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		target, _ := splitFragment(ref.Href)
		if item, ok := pkg.FindByHref(target); ok && item.IsImage() {
			if c := readCover(a, item.Href, item.MediaType, CoverMethodGuide); c != nil {
				return c
			}
		} else if isContentPath(target) {
			if c := readCover(a, coverPageImage(a, target), "", CoverMethodGuide); c != nil {
				return c
			}
		}
	}

	for _, item := range images {
		if matchesCoverKeyword(item.ID) || matchesCoverKeyword(path.Base(item.Href)) {
			if c := readCover(a, item.Href, item.MediaType, CoverMethodKeyword); c != nil {
				return c
			}
		}
	}

	for _, item := range images {
		if c := readCover(a, item.Href, item.MediaType, CoverMethodFirst); c != nil {
			return c
		}
	}

	return firstArchiveImage(a)
}

func matchesCoverKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range coverKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// coverPageImage returns the archive path of the first image referenced by
// an XHTML cover page, or "" when there is none.
func coverPageImage(a *Archive, pageHref string) string {
	data, err := a.Read(pageHref)
	if err != nil {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content.ExpandSelfClosing(stripBOM(data))))
	if err != nil {
		return ""
	}

	var src string
	doc.Find("img, image").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"src", "xlink:href", "href"} {
			if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
				src = v
				return false
			}
		}
		return true
	})
	if src == "" {
		return ""
	}

	dir := path.Dir(normalizePath(pageHref))
	if dir == "." {
		dir = ""
	}
	return resolveHref(dir, src)
}

func readCover(a *Archive, href, mediaType, method string) *Cover {
	if href == "" {
		return nil
	}
	data, err := a.Read(href)
	if err != nil || len(data) == 0 {
		return nil
	}
	key, _ := a.Resolve(href)
	return newCover(data, mediaType, key, method)
}

func firstArchiveImage(a *Archive) *Cover {
	for _, name := range a.Names() {
		data, _ := a.ReadExact(name)
		if len(data) == 0 {
			continue
		}
		if !media.IsImage(data) && !isImagePath(name) {
			continue
		}
		return newCover(data, "", name, CoverMethodArchive)
	}
	return nil
}
