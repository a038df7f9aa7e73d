package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSolidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func mustEncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func mustEncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	data := mustEncodePNG(t, makeSolidNRGBA(40, 20, color.NRGBA{R: 1, G: 2, B: 3, A: 255}))
	info := Inspect(data)
	assert.Equal(t, "image/png", info.MediaType)
	assert.Equal(t, ".png", info.Extension)
	assert.Equal(t, 40, info.Width)
	assert.Equal(t, 20, info.Height)
	assert.True(t, IsImage(data))

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"></svg>`)
	assert.Equal(t, "image/svg+xml", Inspect(svg).MediaType)
	assert.Zero(t, Inspect(svg).Width)

	assert.False(t, IsImage([]byte("plain text")))
}

func TestThumbnail_ResizesWideImage(t *testing.T) {
	data := mustEncodeJPEG(t, makeSolidNRGBA(1200, 800, color.NRGBA{R: 20, G: 50, B: 200, A: 255}))

	out, mt, err := Thumbnail(data, 300)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mt)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestThumbnail_KeepsNarrowImage(t *testing.T) {
	data := mustEncodePNG(t, makeSolidNRGBA(100, 50, color.NRGBA{R: 9, G: 9, B: 9, A: 255}))

	out, mt, err := Thumbnail(data, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mt)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
}

func TestThumbnail_KeepsTransparency(t *testing.T) {
	data := mustEncodePNG(t, makeSolidNRGBA(600, 300, color.NRGBA{R: 10, G: 80, B: 180, A: 120}))

	_, mt, err := Thumbnail(data, 200)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mt)
}

func TestThumbnail_NotImage(t *testing.T) {
	_, _, err := Thumbnail([]byte("<svg/>"), 100)
	assert.ErrorIs(t, err, ErrNotImage)
}
