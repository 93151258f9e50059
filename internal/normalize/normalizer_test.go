package normalize

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/testutil"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(n.Close)
	return n
}

func capture(t *testing.T, img image.Image) document.RawCapture {
	t.Helper()
	return document.NewRawCapture(testutil.EncodePNG(t, img), document.FormatPNG, time.Now())
}

func TestNormalize_DecodeErrors(t *testing.T) {
	n := newTestNormalizer(t)
	tests := []struct {
		name   string
		data   []byte
		format document.Format
	}{
		{"zero bytes", nil, document.FormatAuto},
		{"garbage", []byte("definitely not an image"), document.FormatAuto},
		{"truncated png", []byte("\x89PNG\r\n\x1a\n\x00\x00"), document.FormatPNG},
		{"broken pdf", []byte("%PDF-1.7 broken"), document.FormatPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), document.NewRawCapture(tt.data, tt.format, time.Now()))
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.format, de.Format)
		})
	}
}

func TestNormalize_CropsCardFromBackground(t *testing.T) {
	n := newTestNormalizer(t)
	out, err := n.Normalize(context.Background(), capture(t, testutil.GenerateCapture(testutil.DefaultCaptureConfig())))
	require.NoError(t, err)

	assert.Nil(t, out.Fallback)
	assert.False(t, out.Degraded())
	assert.True(t, out.Transform.Rectified)
	assert.Equal(t, 0, out.Transform.Rotation)
	assert.Equal(t, 320, out.Transform.SourceWidth)
	assert.Equal(t, 240, out.Transform.SourceHeight)
	assert.Equal(t, 240, out.Width())
	assert.Equal(t, 150, out.Height())
	assert.InDelta(t, 1.6, out.AspectRatio(), 0.01)

	tl := out.Transform.Boundary[0]
	assert.InDelta(t, 40, tl.X, 1)
	assert.InDelta(t, 45, tl.Y, 1)
	// The card corner is paper white, not background.
	assert.Equal(t, uint8(255), out.Image.GrayAt(0, 0).Y)
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(t)
	ctx := context.Background()
	first, err := n.Normalize(ctx, capture(t, testutil.GenerateCapture(testutil.DefaultCaptureConfig())))
	require.NoError(t, err)
	require.True(t, first.Transform.Rectified)

	second, err := n.Normalize(ctx, capture(t, first.Image))
	require.NoError(t, err)
	assert.Nil(t, second.Fallback)
	assert.True(t, second.Transform.Identity(), "second pass transform: %+v", second.Transform)
	assert.Equal(t, first.Image.Bounds().Size(), second.Image.Bounds().Size())
	assert.Equal(t, first.Image.Pix, second.Image.Pix)
}

func TestNormalize_BoundaryFallback(t *testing.T) {
	n := newTestNormalizer(t)

	small := testutil.DefaultCaptureConfig()
	small.Card = image.Rect(100, 100, 160, 140)
	small.Lines = nil

	uniform := image.NewGray(image.Rect(0, 0, 600, 100))
	for i := range uniform.Pix {
		uniform.Pix[i] = 128
	}

	tests := []struct {
		name   string
		img    image.Image
		width  int
		height int
	}{
		{"document too small", testutil.GenerateCapture(small), 320, 240},
		{"uniform strip", uniform, 600, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(context.Background(), capture(t, tt.img))
			require.NoError(t, err)
			require.Error(t, out.Fallback)
			assert.True(t, errors.Is(out.Fallback, ErrBoundaryNotFound))
			var bnf *BoundaryNotFoundError
			assert.ErrorAs(t, out.Fallback, &bnf)
			assert.True(t, out.Degraded())
			assert.False(t, out.Transform.Rectified)
			assert.Equal(t, tt.width, out.Width())
			assert.Equal(t, tt.height, out.Height())
		})
	}
}

func TestNormalize_RotatesVerticalText(t *testing.T) {
	n := newTestNormalizer(t)
	out, err := n.Normalize(context.Background(), capture(t, testutil.HorizontalStripes(150, 240, 8, 2, 10)))
	require.NoError(t, err)
	assert.Nil(t, out.Fallback)
	assert.Equal(t, 90, out.Transform.Rotation)
	assert.Equal(t, 240, out.Width())
	assert.Equal(t, 150, out.Height())
}

func TestNormalize_AutoRotateDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoRotate = false
	n, err := New(cfg)
	require.NoError(t, err)
	out, err := n.Normalize(context.Background(), capture(t, testutil.HorizontalStripes(150, 240, 8, 2, 10)))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Transform.Rotation)
	assert.Equal(t, 150, out.Width())
}

func TestNormalize_ScalesToMaxDimension(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDimension = 120
	n, err := New(cfg)
	require.NoError(t, err)
	out, err := n.Normalize(context.Background(), capture(t, testutil.GenerateCapture(testutil.DefaultCaptureConfig())))
	require.NoError(t, err)
	assert.True(t, out.Transform.Scaled)
	assert.LessOrEqual(t, out.Width(), 120)
	assert.LessOrEqual(t, out.Height(), 120)
}

type stubDetector struct {
	err error
}

func (s stubDetector) DetectBoundary(context.Context, *image.Gray) (Boundary, error) {
	return Boundary{}, s.err
}

func TestNormalize_DetectorErrorsPropagate(t *testing.T) {
	n := NewWithDetector(DefaultConfig(), stubDetector{err: context.Canceled})
	_, err := n.NormalizeImage(context.Background(), image.NewGray(image.Rect(0, 0, 160, 100)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeImage_Nil(t *testing.T) {
	n := newTestNormalizer(t)
	_, err := n.NormalizeImage(context.Background(), nil)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MaxAspect = 1.0
	assert.Error(t, bad.Validate())

	_, err := New(bad)
	assert.Error(t, err)
}

func TestStretchContrast_Idempotent(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 10))
	for x := range 100 {
		for y := range 10 {
			img.SetGray(x, y, color.Gray{Y: uint8(60 + x)})
		}
	}
	once, changed := stretchContrast(img, 1)
	require.True(t, changed)
	twice, changed := stretchContrast(once, 1)
	assert.False(t, changed)
	assert.Equal(t, once.Pix, twice.Pix)
	assert.Equal(t, uint8(0), once.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), once.GrayAt(99, 0).Y)
}

func TestOtsuThreshold(t *testing.T) {
	var hist [256]int
	hist[40] = 500
	hist[220] = 300
	th, ok := otsuThreshold(hist, 800)
	require.True(t, ok)
	assert.Greater(t, th, 40)
	assert.LessOrEqual(t, th, 220)

	var flat [256]int
	flat[128] = 10
	_, ok = otsuThreshold(flat, 10)
	assert.False(t, ok)
}

func TestWarpPerspective_AxisAlignedCrop(t *testing.T) {
	src := testutil.GenerateCapture(testutil.DefaultCaptureConfig())
	quad := document.RectQuad(40, 45, 239, 149)
	w, h := rectifiedSize(quad)
	require.Equal(t, 240, w)
	require.Equal(t, 150, h)

	out, ok := warpPerspective(src, quad, w, h)
	require.True(t, ok)
	for _, p := range []image.Point{{0, 0}, {10, 20}, {120, 75}, {239, 149}} {
		assert.Equal(t, src.GrayAt(p.X+40, p.Y+45).Y, out.GrayAt(p.X, p.Y).Y, "pixel %v", p)
	}
}

func TestWarpPerspective_Degenerate(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))
	var q document.Quad
	_, ok := warpPerspective(src, q, 5, 5)
	assert.False(t, ok)
}
