package epub

import (
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// opfPackage represents the OPF XML structure. Dublin Core elements are
// matched by local name so that packages omitting the dc namespace still parse.
type opfPackage struct {
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

// opfMetadata represents the metadata section
type opfMetadata struct {
	Title       []string        `xml:"title"`
	Creator     []opfCreator    `xml:"creator"`
	Language    []string        `xml:"language"`
	Identifier  []opfIdentifier `xml:"identifier"`
	Publisher   []string        `xml:"publisher"`
	Date        []string        `xml:"date"`
	Description []string        `xml:"description"`
	Subject     []string        `xml:"subject"`
	Rights      []string        `xml:"rights"`
	Meta        []opfMeta       `xml:"meta"`
}

// opfCreator represents a creator element
type opfCreator struct {
	Name   string `xml:",chardata"`
	Role   string `xml:"role,attr"`
	FileAs string `xml:"file-as,attr"`
	ID     string `xml:"id,attr"`
}

// opfIdentifier represents an identifier element
type opfIdentifier struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfMeta represents a meta element (EPUB 2.0 and 3.0)
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"` // EPUB 2.0: attribute value
	Value    string `xml:",chardata"`    // EPUB 3.0: element text content
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID           string `xml:"id,attr"`
	Href         string `xml:"href,attr"`
	MediaType    string `xml:"media-type,attr"`
	Properties   string `xml:"properties,attr"`
	MediaOverlay string `xml:"media-overlay,attr"`
}

type opfSpine struct {
	Toc                      string       `xml:"toc,attr"`
	PageProgressionDirection string       `xml:"page-progression-direction,attr"`
	ItemRefs                 []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParsePackage locates the root package through container.xml and parses it.
// Every error it returns satisfies IsPackageError.
func ParsePackage(a *Archive) (*Package, error) {
	opfPath, err := FindRootFile(a)
	if err != nil {
		return nil, err
	}

	content, err := a.ReadXML(opfPath)
	if err != nil {
		return nil, errors.Wrapf(ErrPackageMissing, "%s", opfPath)
	}

	return ParseOPF(content, opfPath)
}

// ParseOPF parses package document content. opfPath is the archive path of
// the document; its directory prefixes every manifest href.
func ParseOPF(content []byte, opfPath string) (*Package, error) {
	var raw opfPackage
	if err := newXMLDecoder(stripBOM(content)).Decode(&raw); err != nil {
		return nil, errors.Wrapf(ErrMalformedPackage, "%s: %v", opfPath, err)
	}

	rootDir := path.Dir(normalizePath(opfPath))
	if rootDir == "." {
		rootDir = ""
	}

	pkg := &Package{
		Path:            normalizePath(opfPath),
		RootDir:         rootDir,
		Version:         strings.TrimSpace(raw.Version),
		Manifest:        make(map[string]ManifestItem, len(raw.Manifest.Items)),
		Spine:           []SpineItem{},
		PageProgression: raw.Spine.PageProgressionDirection,
	}

	pkg.Metadata = parseMetadata(&raw.Metadata, raw.UniqueID)

	for _, item := range raw.Manifest.Items {
		id := strings.TrimSpace(item.ID)
		href := strings.TrimSpace(item.Href)
		if id == "" || href == "" {
			continue
		}
		if _, dup := pkg.Manifest[id]; dup {
			continue
		}
		pkg.Manifest[id] = ManifestItem{
			ID:           id,
			Href:         resolveHref(rootDir, href),
			MediaType:    strings.TrimSpace(item.MediaType),
			Properties:   strings.Fields(item.Properties),
			MediaOverlay: strings.TrimSpace(item.MediaOverlay),
		}
		pkg.ManifestOrder = append(pkg.ManifestOrder, id)
	}

	for _, ref := range raw.Spine.ItemRefs {
		item, ok := pkg.Manifest[strings.TrimSpace(ref.IDRef)]
		if !ok {
			continue
		}
		pkg.Spine = append(pkg.Spine, SpineItem{
			IDRef:     item.ID,
			Href:      item.Href,
			MediaType: item.MediaType,
			Linear:    ref.Linear != "no",
		})
	}

	// Resolve NCX path from toc attribute
	if ncx, ok := pkg.Manifest[strings.TrimSpace(raw.Spine.Toc)]; ok {
		pkg.NCXPath = ncx.Href
	}

	for _, ref := range raw.Guide.References {
		if ref.Href == "" {
			continue
		}
		pkg.Guide = append(pkg.Guide, GuideReference{
			Type:  strings.TrimSpace(ref.Type),
			Title: strings.TrimSpace(ref.Title),
			Href:  resolveHref(rootDir, ref.Href),
		})
	}

	return pkg, nil
}

// parseMetadata parses the metadata section. Dublin Core allows repeated
// elements; the first non-empty value wins.
func parseMetadata(meta *opfMetadata, uniqueID string) Metadata {
	md := Metadata{
		Title:       firstValue(meta.Title),
		Language:    firstValue(meta.Language),
		Publisher:   firstValue(meta.Publisher),
		Date:        firstValue(meta.Date),
		Description: firstValue(meta.Description),
		Rights:      firstValue(meta.Rights),
		Subjects:    []string{},
		Creators:    []Creator{},
	}

	for _, s := range meta.Subject {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}

	// Identifier (find the one marked as unique-identifier)
	for _, id := range meta.Identifier {
		if uniqueID != "" && id.ID == uniqueID {
			md.Identifier = strings.TrimSpace(id.Value)
			break
		}
	}
	if md.Identifier == "" && len(meta.Identifier) > 0 {
		md.Identifier = strings.TrimSpace(meta.Identifier[0].Value)
	}

	refined := make(map[string]map[string]string)
	for _, m := range meta.Meta {
		if m.Refines == "" {
			continue
		}
		key := strings.TrimPrefix(m.Refines, "#")
		if refined[key] == nil {
			refined[key] = make(map[string]string)
		}
		value := strings.TrimSpace(m.Value)
		if value == "" {
			value = strings.TrimSpace(m.Content)
		}
		refined[key][m.Property] = value
	}

	for _, c := range meta.Creator {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		creator := Creator{Name: name, Role: c.Role, FileAs: c.FileAs}
		if props, ok := refined[c.ID]; ok && c.ID != "" {
			if creator.Role == "" {
				creator.Role = props["role"]
			}
			if creator.FileAs == "" {
				creator.FileAs = props["file-as"]
			}
		}
		md.Creators = append(md.Creators, creator)
	}

	for _, m := range meta.Meta {
		switch {
		case strings.EqualFold(m.Name, "cover") && m.Content != "" && md.CoverID == "":
			md.CoverID = strings.TrimSpace(m.Content)
		case m.Property == "rendition:layout" && strings.TrimSpace(m.Value) == "pre-paginated":
			md.FixedLayout = true
		case strings.EqualFold(m.Name, "fixed-layout") && strings.EqualFold(m.Content, "true"):
			md.FixedLayout = true
		}
	}

	return md
}

func firstValue(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// resolveHref turns a package-relative href into an archive path: decoded,
// slash-normalized and joined with the package directory. Remote URLs are
// returned unchanged.
func resolveHref(baseDir, href string) string {
	href = strings.TrimSpace(href)
	if strings.Contains(href, "://") {
		return href
	}
	fragment := ""
	if p, frag := splitFragment(href); frag != "" {
		href, fragment = p, "#"+frag
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	href = strings.ReplaceAll(href, "\\", "/")

	var joined string
	switch {
	case strings.HasPrefix(href, "/"):
		joined = normalizePath(href)
	case baseDir == "":
		joined = normalizePath(href)
	default:
		joined = normalizePath(path.Join(baseDir, href))
	}
	return joined + fragment
}
