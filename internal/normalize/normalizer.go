// Package normalize turns a raw capture into the canonical grayscale
// document raster: decoded, cropped to the document boundary, rectified,
// upright and contrast-normalized.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// Normalizer is safe for concurrent use when its detector is.
type Normalizer struct {
	cfg      Config
	detector BoundaryDetector
	closer   func()
}

// New creates a normalizer. With the boundary model enabled the ONNX
// session is created eagerly so a bad model path fails at startup.
func New(cfg Config) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid normalizer config: %w", err)
	}
	n := &Normalizer{cfg: cfg, detector: NewContourDetector(cfg)}
	if cfg.Model.Enabled {
		md, err := NewModelDetector(cfg, n.detector)
		if err != nil {
			return nil, fmt.Errorf("failed to create boundary model: %w", err)
		}
		n.detector = md
		n.closer = md.Close
	}
	return n, nil
}

// NewWithDetector creates a normalizer using a custom boundary detector.
func NewWithDetector(cfg Config, d BoundaryDetector) *Normalizer {
	return &Normalizer{cfg: cfg, detector: d}
}

// Config returns the normalizer configuration.
func (n *Normalizer) Config() Config { return n.cfg }

// Close releases model resources.
func (n *Normalizer) Close() {
	if n != nil && n.closer != nil {
		n.closer()
		n.closer = nil
	}
}

// Normalize decodes raw and normalizes the result. The only errors are
// *DecodeError and context cancellation; a missing boundary yields a
// full-frame image with Fallback set.
func (n *Normalizer) Normalize(ctx context.Context, raw document.RawCapture) (document.NormalizedImage, error) {
	img, err := Decode(raw)
	if err != nil {
		return document.NormalizedImage{}, err
	}
	return n.NormalizeImage(ctx, img)
}

// NormalizeImage normalizes an already decoded image.
func (n *Normalizer) NormalizeImage(ctx context.Context, img image.Image) (document.NormalizedImage, error) {
	if img == nil {
		return document.NormalizedImage{}, &DecodeError{Err: errors.New("nil image")}
	}
	gray := utils.ToGray(img)
	b := gray.Bounds()
	tr := document.Transform{SourceWidth: b.Dx(), SourceHeight: b.Dy()}

	var fallback error
	bnd, err := n.detector.DetectBoundary(ctx, gray)
	switch {
	case err == nil:
	case errors.Is(err, ErrBoundaryNotFound):
		fallback = err
		bnd = Boundary{Quad: fullFrame(b.Dx(), b.Dy()), Canonical: true}
		slog.Warn("Document boundary not found, using full frame", "error", err)
	default:
		return document.NormalizedImage{}, err
	}
	tr.Boundary = bnd.Quad

	out := gray
	if !bnd.Canonical {
		w, h := rectifiedSize(bnd.Quad)
		warped, ok := warpPerspective(gray, bnd.Quad, w, h)
		if ok {
			out = warped
			tr.Rectified = true
		} else {
			fallback = boundaryNotFound("degenerate perspective transform")
			tr.Boundary = fullFrame(b.Dx(), b.Dy())
		}
	}

	if n.cfg.AutoRotate && out.Bounds().Dy() > out.Bounds().Dx() {
		if vertical, conf := textLinesVertical(out); vertical && conf >= n.cfg.OrientationMargin {
			out = utils.ToGray(utils.Rotate270(out))
			tr.Rotation = 90
			slog.Debug("Rotated portrait capture", "confidence", conf)
		}
	}

	out, tr.Scaled = fitWithin(out, n.cfg.MaxDimension)

	if n.cfg.ContrastStretch {
		out, tr.ContrastStretched = stretchContrast(out, n.cfg.ClipPercent)
	}
	// Canonical input has been sharpened already.
	if n.cfg.Sharpen > 0 && !tr.Identity() {
		out = sharpen(out, n.cfg.Sharpen)
		tr.Sharpened = true
	}

	slog.Debug("Normalized capture",
		"source", fmt.Sprintf("%dx%d", tr.SourceWidth, tr.SourceHeight),
		"output", fmt.Sprintf("%dx%d", out.Bounds().Dx(), out.Bounds().Dy()),
		"rectified", tr.Rectified, "rotation", tr.Rotation, "degraded", fallback != nil)

	return document.NormalizedImage{Image: out, Transform: tr, Fallback: fallback}, nil
}
