// Package document holds the data model shared by the scan stages: the raw
// capture, the canonical image, recognized tokens and the extracted result.
package document

import (
	"image"
	"math"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/utils"
)

// Format names a capture encoding. An empty Format means "sniff the bytes".
type Format string

const (
	FormatAuto Format = ""
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
	FormatHEIC Format = "heic"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps user input ("JPG", "image/png", "heif") to a Format.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpg", "jpeg", "image/jpeg":
		return FormatJPEG
	case "png", "image/png":
		return FormatPNG
	case "gif", "image/gif":
		return FormatGIF
	case "bmp", "image/bmp":
		return FormatBMP
	case "tif", "tiff", "image/tiff":
		return FormatTIFF
	case "webp", "image/webp":
		return FormatWebP
	case "heic", "heif", "image/heic", "image/heif":
		return FormatHEIC
	case "pdf", "application/pdf":
		return FormatPDF
	}
	return FormatAuto
}

// RawCapture is one immutable image buffer handed over by the acquisition
// layer. The bytes are copied on construction and on access.
type RawCapture struct {
	Format     Format
	CapturedAt time.Time
	data       []byte
}

// NewRawCapture copies data into a new capture.
func NewRawCapture(data []byte, format Format, capturedAt time.Time) RawCapture {
	return RawCapture{
		Format:     format,
		CapturedAt: capturedAt,
		data:       append([]byte(nil), data...),
	}
}

// Bytes returns a copy of the capture buffer.
func (c RawCapture) Bytes() []byte { return append([]byte(nil), c.data...) }

// Len returns the buffer size in bytes.
func (c RawCapture) Len() int { return len(c.data) }

// Quad is a quadrilateral ordered top-left, top-right, bottom-right, bottom-left.
type Quad [4]utils.Point

// RectQuad builds an axis-aligned quad.
func RectQuad(x, y, w, h float64) Quad {
	return Quad{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
}

// Bounds returns the axis-aligned bounding box of q.
func (q Quad) Bounds() utils.Box { return utils.BoundingBox(q[:]) }

// Center returns the midpoint of the bounding box.
func (q Quad) Center() utils.Point { return q.Bounds().Center() }

// Area returns the polygon area.
func (q Quad) Area() float64 { return utils.PolygonArea(q[:]) }

// EdgeLengths returns the mean width (top/bottom) and mean height (left/right).
func (q Quad) EdgeLengths() (float64, float64) {
	w := (utils.Distance(q[0], q[1]) + utils.Distance(q[3], q[2])) / 2
	h := (utils.Distance(q[0], q[3]) + utils.Distance(q[1], q[2])) / 2
	return w, h
}

// Transform records the geometric operations the normalizer applied.
type Transform struct {
	SourceWidth       int  `json:"source_width"`
	SourceHeight      int  `json:"source_height"`
	Boundary          Quad `json:"boundary"`
	Rectified         bool `json:"rectified"`
	Rotation          int  `json:"rotation"`
	Scaled            bool `json:"scaled"`
	ContrastStretched bool `json:"contrast_stretched"`
	Sharpened         bool `json:"sharpened"`
}

// Identity reports whether the transform left geometry untouched.
func (t Transform) Identity() bool {
	return !t.Rectified && t.Rotation == 0 && !t.Scaled
}

// NormalizedImage is the canonical raster handed to recognition.
// Fallback is non-nil when normalization could not locate the document and
// the full frame was used instead.
type NormalizedImage struct {
	Image     *image.Gray
	Transform Transform
	Fallback  error
}

// Width returns the raster width.
func (n NormalizedImage) Width() int {
	if n.Image == nil {
		return 0
	}
	return n.Image.Bounds().Dx()
}

// Height returns the raster height.
func (n NormalizedImage) Height() int {
	if n.Image == nil {
		return 0
	}
	return n.Image.Bounds().Dy()
}

// AspectRatio returns long side over short side.
func (n NormalizedImage) AspectRatio() float64 {
	w, h := float64(n.Width()), float64(n.Height())
	if w == 0 || h == 0 {
		return 0
	}
	return math.Max(w, h) / math.Min(w, h)
}

// Degraded reports whether the full-frame fallback was used.
func (n NormalizedImage) Degraded() bool { return n.Fallback != nil }

// TextToken is one recognized fragment in canonical image coordinates.
type TextToken struct {
	Index         int     `json:"index"`
	Text          string  `json:"text"`
	Box           Quad    `json:"box"`
	Confidence    float64 `json:"confidence"`
	Script        string  `json:"script,omitempty"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
}

// Bounds returns the token's axis-aligned box.
func (t TextToken) Bounds() utils.Box { return t.Box.Bounds() }
