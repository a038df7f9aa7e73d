package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

// Well-known archive paths.
const (
	ContainerPath  = "META-INF/container.xml"
	EncryptionPath = "META-INF/encryption.xml"
	SinfPath       = "META-INF/sinf.xml"
	LicensePath    = "META-INF/license.lcpl"
	MimetypePath   = "mimetype"

	epubMimetype = "application/epub+zip"
)

// DefaultMaxEntrySize bounds the decompressed size of a single entry.
const DefaultMaxEntrySize int64 = 256 * 1024 * 1024

var (
	errInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	errMimetypeCompressed = errors.New("mimetype must not be compressed")
	errMimetypeNotFound   = errors.New("mimetype file not found")
)

// Archive holds the decompressed entries of a zip container together with the
// lookup indexes used to tolerate href variance in real-world files.
type Archive struct {
	names   []string
	entries map[string][]byte
	methods map[string]uint16

	decoded map[string]string   // percent-decoded name -> name
	folded  map[string]string   // lower-cased name -> name
	base    map[string][]string // lower-cased basename -> names, zip order
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// OpenArchive indexes a zip container held in memory.
func OpenArchive(data []byte) (*Archive, error) {
	return OpenArchiveLimit(data, DefaultMaxEntrySize)
}

// OpenArchiveLimit is OpenArchive with an explicit per-entry size limit.
// Entries that are oversized, unreadable or escape the archive root are left
// out of the index; only a container that is not a zip at all is an error.
func OpenArchiveLimit(data []byte, limit int64) (*Archive, error) {
	if limit <= 0 {
		limit = DefaultMaxEntrySize
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && (zr == nil || !errors.Is(err, zip.ErrInsecurePath)) {
		return nil, errors.Wrapf(ErrCorruptArchive, "open zip: %v", err)
	}

	a := &Archive{
		entries: make(map[string][]byte, len(zr.File)),
		methods: make(map[string]uint16, len(zr.File)),
		decoded: make(map[string]string),
		folded:  make(map[string]string),
		base:    make(map[string][]string),
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizePath(f.Name)
		if name == "" || !isSafePath(name) {
			continue
		}
		if _, dup := a.entries[name]; dup {
			continue
		}
		content, err := readZipFile(f, limit)
		if err != nil {
			continue
		}
		a.add(name, content, f.Method)
	}

	return a, nil
}

func (a *Archive) add(name string, content []byte, method uint16) {
	a.names = append(a.names, name)
	a.entries[name] = content
	a.methods[name] = method

	if d, err := url.PathUnescape(name); err == nil && d != name {
		if _, ok := a.decoded[d]; !ok {
			a.decoded[d] = name
		}
	}
	lower := strings.ToLower(name)
	if _, ok := a.folded[lower]; !ok {
		a.folded[lower] = name
	}
	b := strings.ToLower(path.Base(name))
	a.base[b] = append(a.base[b], name)
}

// Names returns the indexed entry names in archive order.
func (a *Archive) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Len returns the number of indexed entries.
func (a *Archive) Len() int {
	return len(a.names)
}

// Has reports whether name resolves to an entry.
func (a *Archive) Has(name string) bool {
	_, ok := a.Resolve(name)
	return ok
}

// Read returns the bytes of the entry name resolves to.
func (a *Archive) Read(name string) ([]byte, error) {
	key, ok := a.Resolve(name)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return a.entries[key], nil
}

// ReadExact returns an entry by exact or case-insensitive name only. It is
// used for the fixed META-INF paths, where a basename match would be wrong.
func (a *Archive) ReadExact(name string) ([]byte, bool) {
	n := normalizePath(name)
	if content, ok := a.entries[n]; ok {
		return content, true
	}
	if key, ok := a.folded[strings.ToLower(n)]; ok {
		return a.entries[key], true
	}
	return nil, false
}

// ReadXML is Read with a leading UTF-8 byte order mark removed.
func (a *Archive) ReadXML(name string) ([]byte, error) {
	data, err := a.Read(name)
	if err != nil {
		return nil, err
	}
	return stripBOM(data), nil
}

// Resolve maps an href to an archive entry name. It tries, in order: exact,
// percent-decoded, case-insensitive, suffix and basename matches.
func (a *Archive) Resolve(name string) (string, bool) {
	n := normalizePath(name)
	if n == "" {
		return "", false
	}
	if _, ok := a.entries[n]; ok {
		return n, true
	}
	if p, frag := splitFragment(n); frag != "" || strings.HasSuffix(n, "#") {
		return a.Resolve(p)
	}

	q := n
	if d, err := url.PathUnescape(n); err == nil {
		q = normalizePath(d)
	}
	if _, ok := a.entries[q]; ok {
		return q, true
	}
	if k, ok := a.decoded[q]; ok {
		return k, true
	}

	if k, ok := a.folded[strings.ToLower(q)]; ok {
		return k, true
	}

	for _, k := range a.names {
		if strings.HasSuffix(k, "/"+q) || strings.HasSuffix(q, "/"+k) {
			return k, true
		}
	}
	for _, k := range a.names {
		d, err := url.PathUnescape(k)
		if err != nil {
			continue
		}
		if strings.HasSuffix(d, "/"+q) || strings.HasSuffix(q, "/"+d) {
			return k, true
		}
	}

	if ks := a.base[strings.ToLower(path.Base(q))]; len(ks) > 0 {
		return ks[0], true
	}
	return "", false
}

// CheckMimetype validates the mimetype entry. Files failing this check are
// still readable; the result is only advisory.
func (a *Archive) CheckMimetype() error {
	content, ok := a.entries[MimetypePath]
	if !ok {
		return errMimetypeNotFound
	}
	if a.methods[MimetypePath] != zip.Store {
		return errMimetypeCompressed
	}
	if strings.TrimSpace(string(content)) != epubMimetype {
		return errInvalidMimetype
	}
	return nil
}

// FindRootFile parses container.xml and returns the first rootfile path.
func FindRootFile(a *Archive) (string, error) {
	content, ok := a.ReadExact(ContainerPath)
	if !ok {
		return "", errors.Wrap(ErrNoRootFile, "container.xml not found")
	}

	var c container
	if err := newXMLDecoder(stripBOM(content)).Decode(&c); err != nil {
		return "", errors.Wrapf(ErrNoRootFile, "parse container.xml: %v", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if p := normalizePath(rf.FullPath); p != "" {
			return p, nil
		}
	}

	return "", errors.Wrap(ErrNoRootFile, "container.xml has no rootfile")
}

// newXMLDecoder returns a decoder that accepts non UTF-8 encodings and HTML
// named entities, both common in hand-made packages.
func newXMLDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity
	return dec
}

func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, errors.Errorf("zip entry %s too large: %d bytes", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit to catch it.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read zip entry %s", f.Name)
	}
	if int64(len(data)) > limit {
		return nil, errors.Errorf("zip entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

// normalizePath converts an href or entry name to the archive's canonical
// form: forward slashes, no "./" or leading "/".
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// isSafePath reports whether p stays inside the archive root.
func isSafePath(p string) bool {
	return p != ".." && !strings.HasPrefix(p, "../")
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
