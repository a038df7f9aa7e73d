// Package media inspects image resources and renders cover thumbnails.
package media

import (
	"bytes"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

const (
	// DefaultThumbnailWidth is used when a caller passes a non-positive width.
	DefaultThumbnailWidth = 300

	defaultJPEGQuality = 85
	defaultMaxPixels   = 100 * 1000 * 1000 // 100 megapixels
)

var (
	// ErrNotImage is returned for data that is not a raster image.
	ErrNotImage = errors.New("media: not a raster image")

	// ErrImageTooLarge is returned for images above the decode pixel limit.
	ErrImageTooLarge = errors.New("media: image too large to decode")
)

// Info describes an image resource.
type Info struct {
	MediaType string
	Extension string
	Width     int // zero when the dimensions cannot be read (e.g. SVG)
	Height    int
}

// Inspect sniffs the media type of data and, for raster images, its
// dimensions.
func Inspect(data []byte) Info {
	mt := mimetype.Detect(data)
	info := Info{
		MediaType: baseType(mt.String()),
		Extension: mt.Extension(),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.Width = cfg.Width
		info.Height = cfg.Height
	}
	return info
}

// IsImage reports whether data is sniffed as an image of any kind.
func IsImage(data []byte) bool {
	return strings.HasPrefix(baseType(mimetype.Detect(data).String()), "image/")
}

// Thumbnail scales a raster image down to maxWidth, keeping its aspect ratio,
// and returns it with its media type. Images already narrow enough are
// re-encoded unscaled. Transparent images are kept as PNG, everything else
// becomes JPEG.
func Thumbnail(data []byte, maxWidth int) ([]byte, string, error) {
	if maxWidth <= 0 {
		maxWidth = DefaultThumbnailWidth
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(ErrNotImage, err.Error())
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if pixels > defaultMaxPixels {
		return nil, "", errors.Wrapf(ErrImageTooLarge, "%dx%d", cfg.Width, cfg.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", errors.Wrap(ErrNotImage, err.Error())
	}

	processed := src
	if src.Bounds().Dx() > maxWidth {
		processed = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if hasAlpha(processed) {
		if err := imaging.Encode(&buf, processed, imaging.PNG); err != nil {
			return nil, "", errors.Wrap(err, "png encode failed")
		}
		return buf.Bytes(), "image/png", nil
	}
	if err := imaging.Encode(&buf, processed, imaging.JPEG, imaging.JPEGQuality(defaultJPEGQuality)); err != nil {
		return nil, "", errors.Wrap(err, "jpeg encode failed")
	}
	return buf.Bytes(), "image/jpeg", nil
}

func baseType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}
