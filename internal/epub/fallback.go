package epub

import (
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

var conventionalCoverNames = []string{
	"cover.jpg", "cover.jpeg", "cover.png", "cover.gif", "cover.webp",
	"images/cover.jpg", "images/cover.jpeg", "images/cover.png",
	"Images/cover.jpg", "Images/cover.jpeg", "Images/cover.png",
}

// LoadFallback builds a reduced document directly from the archive. It never
// fails: an archive without any discoverable content yields an empty document
// titled UnknownTitle. The result has no nested table of contents and no
// encryption classification.
func LoadFallback(a *Archive) *Document {
	doc := &Document{
		Title:    UnknownTitle,
		Authors:  []string{},
		Spine:    []SpineItem{},
		Manifest: map[string]ManifestItem{},
		Degraded: true,
		archive:  a,
	}

	if opfPath := fallbackPackagePath(a); opfPath != "" {
		doc.PackagePath = opfPath
		if data, ok := a.ReadExact(opfPath); ok {
			readFallbackPackage(doc, stripBOM(data), opfPath)
		}
	}

	if len(doc.Spine) == 0 {
		addContentDocuments(doc)
	}

	doc.TOC = SpineTOC(doc.Spine)
	doc.NavSource = NavSourceSpine
	doc.Cover = fallbackCover(a, rootDirOf(doc.PackagePath))
	return doc
}

// fallbackPackagePath takes the rootfile from container.xml when it exists,
// else the first .opf entry.
func fallbackPackagePath(a *Archive) string {
	if p, err := FindRootFile(a); err == nil {
		if _, ok := a.ReadExact(p); ok {
			return p
		}
	}
	for _, name := range a.Names() {
		if strings.EqualFold(path.Ext(name), ".opf") {
			return name
		}
	}
	return ""
}

// readFallbackPackage reads title, creator, item and itemref elements from a
// package document, in permissive mode and regardless of namespace. A read
// error keeps whatever was parsed before it, so a truncated package still
// yields its metadata and spine order.
func readFallbackPackage(doc *Document, data []byte, opfPath string) {
	x := etree.NewDocument()
	x.ReadSettings.Permissive = true
	_ = x.ReadFromBytes(data)
	root := x.Root()
	if root == nil {
		return
	}

	if el := findFirst(root, "title"); el != nil {
		if t := collapseSpace(el.Text()); t != "" {
			doc.Title = t
		}
	}
	if el := findFirst(root, "creator"); el != nil {
		if c := collapseSpace(el.Text()); c != "" {
			doc.Authors = append(doc.Authors, c)
		}
	}

	rootDir := rootDirOf(opfPath)
	a := doc.archive
	walk(root, func(el *etree.Element) {
		if el.Tag != "item" {
			return
		}
		id := strings.TrimSpace(el.SelectAttrValue("id", ""))
		href := strings.TrimSpace(el.SelectAttrValue("href", ""))
		if id == "" || href == "" {
			return
		}
		if _, dup := doc.Manifest[id]; dup {
			return
		}
		key, ok := fallbackLookup(a, rootDir, href)
		if !ok {
			key = resolveHref(rootDir, href)
		}
		doc.Manifest[id] = ManifestItem{
			ID:         id,
			Href:       key,
			MediaType:  strings.TrimSpace(el.SelectAttrValue("media-type", "")),
			Properties: strings.Fields(el.SelectAttrValue("properties", "")),
		}
		doc.ManifestOrder = append(doc.ManifestOrder, id)
	})

	walk(root, func(el *etree.Element) {
		if el.Tag != "itemref" {
			return
		}
		item, ok := doc.Manifest[strings.TrimSpace(el.SelectAttrValue("idref", ""))]
		if !ok || !a.Has(item.Href) {
			return
		}
		doc.Spine = append(doc.Spine, SpineItem{
			IDRef:     item.ID,
			Href:      item.Href,
			MediaType: item.MediaType,
			Linear:    el.SelectAttrValue("linear", "yes") != "no",
		})
	})
}

// fallbackLookup finds a package href in the archive: as written, relative
// to the package directory, then percent-decoded.
func fallbackLookup(a *Archive, rootDir, href string) (string, bool) {
	href, _ = splitFragment(href)
	candidates := []string{href, path.Join(rootDir, href)}
	if d, err := url.PathUnescape(href); err == nil && d != href {
		candidates = append(candidates, d, path.Join(rootDir, d))
	}
	for _, c := range candidates {
		n := normalizePath(c)
		if _, ok := a.entries[n]; ok {
			return n, true
		}
	}
	return "", false
}

// addContentDocuments uses every content document in name order as the spine.
func addContentDocuments(doc *Document) {
	names := []string{}
	for _, name := range doc.archive.Names() {
		if isContentPath(name) && !strings.HasPrefix(strings.ToUpper(name), "META-INF/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for i, name := range names {
		id := "content-" + strconv.Itoa(i+1)
		if _, taken := doc.Manifest[id]; taken {
			continue
		}
		item := ManifestItem{ID: id, Href: name, MediaType: "application/xhtml+xml"}
		doc.Manifest[id] = item
		doc.ManifestOrder = append(doc.ManifestOrder, id)
		doc.Spine = append(doc.Spine, SpineItem{IDRef: id, Href: name, MediaType: item.MediaType, Linear: true})
	}
}

func fallbackCover(a *Archive, rootDir string) *Cover {
	for _, name := range conventionalCoverNames {
		for _, p := range []string{path.Join(rootDir, name), name} {
			if data, ok := a.ReadExact(p); ok && len(data) > 0 {
				return newCover(data, "", normalizePath(p), CoverMethodFilename)
			}
		}
	}
	for _, name := range a.Names() {
		if isImagePath(name) && strings.Contains(strings.ToLower(path.Base(name)), "cover") {
			data, _ := a.ReadExact(name)
			if len(data) > 0 {
				return newCover(data, "", name, CoverMethodFilename)
			}
		}
	}
	return nil
}

func findFirst(root *etree.Element, tag string) *etree.Element {
	var found *etree.Element
	walk(root, func(el *etree.Element) {
		if found == nil && el.Tag == tag {
			found = el
		}
	})
	return found
}

// walk visits el and its descendants in document order.
func walk(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, child := range el.ChildElements() {
		walk(child, fn)
	}
}

func rootDirOf(opfPath string) string {
	dir := path.Dir(opfPath)
	if dir == "." || opfPath == "" {
		return ""
	}
	return dir
}
