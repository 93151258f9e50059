package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

// SmallSize is the default capture frame used by normalizer tests.
var SmallSize = ImageSize{320, 240}

// CaptureConfig describes a synthetic capture: a card drawn on a background
// with lines of text printed inside it.
type CaptureConfig struct {
	Size       ImageSize
	Background color.Gray
	Card       image.Rectangle
	CardColor  color.Gray
	Ink        color.Gray
	Lines      []string
	FontFace   font.Face
}

// DefaultCaptureConfig returns a white 240x150 card on a dark 320x240 frame.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Size:       SmallSize,
		Background: color.Gray{Y: 40},
		Card:       image.Rect(40, 45, 280, 195),
		CardColor:  color.Gray{Y: 255},
		Ink:        color.Gray{Y: 0},
		Lines:      []string{"DRIVER LICENSE", "DL I1234568", "LN SMITH", "FN JOHN"},
		FontFace:   basicfont.Face7x13,
	}
}

// GenerateCapture renders cfg into a grayscale image.
func GenerateCapture(cfg CaptureConfig) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, cfg.Size.Width, cfg.Size.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: cfg.Background}, image.Point{}, draw.Src)
	if cfg.Card.Empty() {
		return img
	}
	draw.Draw(img, cfg.Card, &image.Uniform{C: cfg.CardColor}, image.Point{}, draw.Src)

	face := cfg.FontFace
	if face == nil {
		face = basicfont.Face7x13
	}
	d := &font.Drawer{Dst: img, Src: &image.Uniform{C: cfg.Ink}, Face: face}
	lineHeight := face.Metrics().Height.Ceil() + 6
	y := cfg.Card.Min.Y + 12 + face.Metrics().Ascent.Ceil()
	for _, line := range cfg.Lines {
		if y+face.Metrics().Descent.Ceil() >= cfg.Card.Max.Y-8 {
			break
		}
		d.Dot = fixed.P(cfg.Card.Min.X+12, y)
		d.DrawString(line)
		y += lineHeight
	}
	return img
}

// HorizontalStripes returns a white w x h image with dark bands of the given
// thickness repeating every period pixels, inset from the left and right edge.
func HorizontalStripes(w, h, period, thickness, inset int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := period; y < h-period; y++ {
		if (y % period) >= thickness {
			continue
		}
		for x := inset; x < w-inset; x++ {
			img.Pix[y*img.Stride+x] = 0
		}
	}
	return img
}

// EncodePNG encodes img and fails the test on error.
func EncodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
