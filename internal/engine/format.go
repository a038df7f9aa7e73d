package engine

import (
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Format identifies a container format the engine can open.
type Format string

const (
	FormatEPUB Format = "epub"
	// FormatZip is a zip container without the EPUB mimetype marker. It is
	// opened the same way, usually ending in the fallback reader.
	FormatZip Format = "zip"
)

// Capability is a feature a format handler supports.
type Capability string

const (
	CapabilityNavigation Capability = "navigation"
	CapabilitySearch     Capability = "search"
	CapabilityCover      Capability = "cover"
	CapabilityEncryption Capability = "encryption"
)

// ErrUnsupportedFormat is returned by DetectFormat for data no handler
// accepts.
var ErrUnsupportedFormat = errors.New("engine: unsupported format")

// FormatInfo describes a format handler.
type FormatInfo struct {
	Format       Format       `json:"format"`
	MediaTypes   []string     `json:"media_types"`
	Capabilities []Capability `json:"capabilities"`
}

// Supports reports whether the handler has capability c.
func (f FormatInfo) Supports(c Capability) bool {
	for _, have := range f.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// formats is the ordered handler list; the first handler matching the
// sniffed media type, or one of its parents, wins.
var formats = []FormatInfo{
	{
		Format:       FormatEPUB,
		MediaTypes:   []string{"application/epub+zip"},
		Capabilities: []Capability{CapabilityNavigation, CapabilitySearch, CapabilityCover, CapabilityEncryption},
	},
	{
		Format:       FormatZip,
		MediaTypes:   []string{"application/zip"},
		Capabilities: []Capability{CapabilityNavigation, CapabilitySearch, CapabilityCover},
	},
}

// Formats returns the handler list in priority order.
func Formats() []FormatInfo {
	out := make([]FormatInfo, len(formats))
	copy(out, formats)
	return out
}

// DetectFormat sniffs data by its magic bytes and returns the handler for it.
func DetectFormat(data []byte) (FormatInfo, error) {
	detected := mimetype.Detect(data)
	for mt := detected; mt != nil; mt = mt.Parent() {
		for _, f := range formats {
			for _, candidate := range f.MediaTypes {
				if mt.Is(candidate) {
					return f, nil
				}
			}
		}
	}
	return FormatInfo{}, errors.Wrapf(ErrUnsupportedFormat, "%s", detected.String())
}
