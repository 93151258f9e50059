package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, "jpeg", FormatFromPath("/tmp/card.JPG"))
	assert.Equal(t, "heic", FormatFromPath("photo.heif"))
	assert.Equal(t, "pdf", FormatFromPath("scan.pdf"))
	assert.Empty(t, FormatFromPath("notes.txt"))
	assert.False(t, IsSupportedImage("notes.txt"))
}

func TestSniffing(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n")))
	assert.False(t, IsPDF([]byte("PNG")))
	assert.True(t, IsHEIC([]byte("\x00\x00\x00\x18ftypheic\x00\x00")))
	assert.False(t, IsHEIC([]byte("\x00\x00\x00\x18ftypisom\x00\x00")))
	assert.False(t, IsHEIC([]byte("short")))
}

func TestDecodeRaster(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, format, err := DecodeRaster(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, _, err = DecodeRaster(nil)
	var ipe *ImageProcessingError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, "decode", ipe.Operation)

	_, _, err = DecodeRaster([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestToGray(t *testing.T) {
	src := image.NewRGBA(image.Rect(2, 2, 6, 5))
	src.Set(2, 2, color.White)
	g := ToGray(src)
	assert.Equal(t, image.Rect(0, 0, 4, 3), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Same(t, g, ToGray(g))
}
