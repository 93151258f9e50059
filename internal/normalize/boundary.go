package normalize

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// Boundary is a detected document outline in source pixel coordinates.
// Canonical is set when the frame itself is the document.
type Boundary struct {
	Quad      document.Quad
	Canonical bool
}

// BoundaryDetector locates the document inside a grayscale frame. It
// returns an error matching ErrBoundaryNotFound when no plausible document
// region exists.
type BoundaryDetector interface {
	DetectBoundary(ctx context.Context, img *image.Gray) (Boundary, error)
}

// ContourDetector finds the document by luminance separation from the
// background: Otsu threshold on a thumbnail, document class chosen against
// the frame border, convex hull, extreme-corner quad.
type ContourDetector struct {
	cfg Config
}

// NewContourDetector creates a contour detector.
func NewContourDetector(cfg Config) *ContourDetector {
	return &ContourDetector{cfg: cfg}
}

// DetectBoundary implements BoundaryDetector.
func (d *ContourDetector) DetectBoundary(ctx context.Context, img *image.Gray) (Boundary, error) {
	if err := ctx.Err(); err != nil {
		return Boundary{}, err
	}
	thumb := thumbnail(img, d.cfg.DetectionSize)
	tb := thumb.Bounds()
	tw, th := tb.Dx(), tb.Dy()

	hist := histogram(thumb)
	t, ok := otsuThreshold(hist, tw*th)
	if !ok {
		// Single gray level, nothing to separate.
		return d.canonical(img)
	}

	bright, dark := splitPoints(thumb, t)
	var docPts []utils.Point
	if borderBrightFraction(thumb, t) >= 0.5 {
		// Either the frame is paper with dark print, or a dark document lies
		// on a bright background; a solid dark block means the latter.
		if len(dark) == 0 || fillRatio(dark) < d.cfg.SolidFill {
			return d.canonical(img)
		}
		docPts = dark
	} else {
		docPts = bright
	}

	quad, err := quadFromPoints(docPts)
	if err != nil {
		return Boundary{}, err
	}
	if nearFrame(quad, tw, th, d.cfg.MaxSkew) {
		return d.canonical(img)
	}
	if err := validateQuad(quad, tw, th, d.cfg); err != nil {
		return Boundary{}, err
	}
	return Boundary{Quad: scaleQuad(quad, img.Bounds().Dx(), img.Bounds().Dy(), tw, th)}, nil
}

func (d *ContourDetector) canonical(img *image.Gray) (Boundary, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	ar := math.Max(float64(w), float64(h)) / math.Min(float64(w), float64(h))
	if ar < d.cfg.MinAspect || ar > d.cfg.MaxAspect {
		return Boundary{}, boundaryNotFound("frame aspect %.2f outside [%.2f, %.2f]", ar, d.cfg.MinAspect, d.cfg.MaxAspect)
	}
	return Boundary{Quad: fullFrame(w, h), Canonical: true}, nil
}

func fullFrame(w, h int) document.Quad {
	return document.Quad{
		{X: 0, Y: 0},
		{X: float64(w - 1), Y: 0},
		{X: float64(w - 1), Y: float64(h - 1)},
		{X: 0, Y: float64(h - 1)},
	}
}

// thumbnail downsizes img so its longest side is at most size.
func thumbnail(img *image.Gray, size int) *image.Gray {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}
	return utils.ToGray(imaging.Fit(img, size, size, imaging.Box))
}

func histogram(img *image.Gray) [256]int {
	var hist [256]int
	b := img.Bounds()
	for y := range b.Dy() {
		for _, v := range img.Pix[y*img.Stride : y*img.Stride+b.Dx()] {
			hist[v]++
		}
	}
	return hist
}

// otsuThreshold returns the threshold maximizing between-class variance;
// pixels >= t form the bright class. ok is false for single-level images.
func otsuThreshold(hist [256]int, total int) (int, bool) {
	var sum float64
	levels := 0
	for i, c := range hist {
		sum += float64(i * c)
		if c > 0 {
			levels++
		}
	}
	if levels < 2 || total == 0 {
		return 0, false
	}

	var sumB, wB float64
	best, bestVar := 0, -1.0
	for t := range 256 {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		v := wB * wF * (mB - mF) * (mB - mF)
		if v > bestVar {
			bestVar = v
			best = t
		}
	}
	return best + 1, true
}

func splitPoints(img *image.Gray, t int) (bright, dark []utils.Point) {
	b := img.Bounds()
	for y := range b.Dy() {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range row {
			p := utils.Point{X: float64(x), Y: float64(y)}
			if int(v) >= t {
				bright = append(bright, p)
			} else {
				dark = append(dark, p)
			}
		}
	}
	return bright, dark
}

func borderBrightFraction(img *image.Gray, t int) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var bright, total int
	count := func(x, y int) {
		total++
		if int(img.Pix[y*img.Stride+x]) >= t {
			bright++
		}
	}
	for x := range w {
		count(x, 0)
		if h > 1 {
			count(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		count(0, y)
		if w > 1 {
			count(w-1, y)
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bright) / float64(total)
}

// fillRatio is the share of the points' convex hull they actually cover.
func fillRatio(pts []utils.Point) float64 {
	hull := utils.ConvexHull(pts)
	b := utils.BoundingBox(hull)
	// Hull of pixel centers misses half a pixel on each side.
	area := utils.PolygonArea(hull) + b.Width() + b.Height() + 1
	if area <= 0 {
		return 0
	}
	return math.Min(1, float64(len(pts))/area)
}

func quadFromPoints(pts []utils.Point) (document.Quad, error) {
	hull := utils.ConvexHull(pts)
	corners, ok := utils.ExtremeCorners(hull)
	if !ok {
		return document.Quad{}, boundaryNotFound("degenerate document outline")
	}
	return document.Quad(corners), nil
}

func nearFrame(q document.Quad, w, h int, skew float64) bool {
	frame := fullFrame(w, h)
	tol := skew * math.Max(float64(w), float64(h))
	for i := range q {
		if utils.Distance(q[i], frame[i]) > tol+0.5 {
			return false
		}
	}
	return true
}

// validateQuad gates the quad on area ratio and aspect ratio in detection space.
func validateQuad(q document.Quad, w, h int, cfg Config) error {
	qw, qh := q.EdgeLengths()
	qw++
	qh++
	if qw <= 2 || qh <= 2 {
		return boundaryNotFound("outline too small")
	}
	ratio := q.Area() / float64(w*h)
	if ratio < cfg.MinAreaRatio {
		return boundaryNotFound("outline covers %.1f%% of the frame", ratio*100)
	}
	ar := math.Max(qw, qh) / math.Min(qw, qh)
	if ar < cfg.MinAspect || ar > cfg.MaxAspect {
		return boundaryNotFound("outline aspect %.2f outside [%.2f, %.2f]", ar, cfg.MinAspect, cfg.MaxAspect)
	}
	return nil
}

// scaleQuad maps pixel-center coordinates from a tw x th thumbnail to w x h.
func scaleQuad(q document.Quad, w, h, tw, th int) document.Quad {
	if w == tw && h == th {
		return q
	}
	sx := float64(w) / float64(tw)
	sy := float64(h) / float64(th)
	var out document.Quad
	for i, p := range q {
		out[i] = utils.Point{X: (p.X+0.5)*sx - 0.5, Y: (p.Y+0.5)*sy - 0.5}
	}
	return out
}
