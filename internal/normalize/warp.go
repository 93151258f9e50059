package normalize

import (
	"image"
	"math"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// homography maps destination pixels to source pixels.
type homography [9]float64

// computeHomography computes the 3x3 matrix H mapping p[i] -> q[i] with h22 = 1.
func computeHomography(p, q [4]utils.Point) (homography, bool) {
	var a [8][8]float64
	var b [8]float64
	for i := range 4 {
		X, Y := p[i].X, p[i].Y
		x, y := q[i].X, q[i].Y
		r := 2 * i
		// x' = (h00 X + h01 Y + h02)/(h20 X + h21 Y + 1)
		a[r] = [8]float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x}
		b[r] = x
		// y' = (h10 X + h11 Y + h12)/(h20 X + h21 Y + 1)
		a[r+1] = [8]float64{0, 0, 0, X, Y, 1, -X * y, -Y * y}
		b[r+1] = y
	}

	h, ok := solve8x8(a, b)
	if !ok {
		return homography{}, false
	}
	return homography{h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], 1}, true
}

// solve8x8 runs Gauss-Jordan elimination with partial pivoting.
func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	for col := range 8 {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [8]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		div := a[col][col]
		for c := col; c < 8; c++ {
			a[col][c] /= div
		}
		b[col] /= div

		for r := range 8 {
			if r == col || a[r][col] == 0 {
				continue
			}
			factor := a[r][col]
			for c := col; c < 8; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}
	return b, true
}

func (h homography) apply(x, y float64) (float64, float64, bool) {
	denom := h[6]*x + h[7]*y + h[8]
	if denom == 0 {
		return 0, 0, false
	}
	return (h[0]*x + h[1]*y + h[2]) / denom, (h[3]*x + h[4]*y + h[5]) / denom, true
}

// rectifiedSize returns the output size for quad: mean edge lengths in pixels.
func rectifiedSize(q document.Quad) (int, int) {
	w, h := q.EdgeLengths()
	return int(math.Round(w)) + 1, int(math.Round(h)) + 1
}

// warpPerspective maps srcQuad onto a dstW x dstH rectangle using the inverse
// homography and bilinear sampling. Samples outside src are white.
func warpPerspective(src *image.Gray, srcQuad document.Quad, dstW, dstH int) (*image.Gray, bool) {
	if dstW <= 0 || dstH <= 0 {
		return nil, false
	}
	dstQuad := [4]utils.Point{
		{X: 0, Y: 0},
		{X: float64(dstW - 1), Y: 0},
		{X: float64(dstW - 1), Y: float64(dstH - 1)},
		{X: 0, Y: float64(dstH - 1)},
	}
	h, ok := computeHomography(dstQuad, srcQuad)
	if !ok {
		return nil, false
	}

	out := image.NewGray(image.Rect(0, 0, dstW, dstH))
	for y := range dstH {
		row := out.Pix[y*out.Stride : y*out.Stride+dstW]
		for x := range dstW {
			sx, sy, ok := h.apply(float64(x), float64(y))
			if !ok {
				row[x] = 255
				continue
			}
			row[x] = bilinearGray(src, sx, sy)
		}
	}
	return out, true
}

func bilinearGray(src *image.Gray, x, y float64) uint8 {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if x < -0.5 || y < -0.5 || x > float64(w)-0.5 || y > float64(h)-0.5 {
		return 255
	}
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	at := func(px, py int) float64 { return float64(src.Pix[py*src.Stride+px]) }
	top := at(x0, y0) + (at(x1, y0)-at(x0, y0))*fx
	bottom := at(x0, y1) + (at(x1, y1)-at(x0, y1))*fx
	return uint8(math.Round(top + (bottom-top)*fy))
}
