package normalize

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/idscan/internal/utils"
)

// stretchContrast clips clipPercent of the pixels at each end of the
// histogram and maps the remaining range linearly onto [0,255]. The result
// always has clipped pixels at 0 and 255, so a second pass is the identity.
func stretchContrast(img *image.Gray, clipPercent float64) (*image.Gray, bool) {
	hist := histogram(img)
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	clip := int(float64(total) * clipPercent / 100)

	lo, cum := 0, 0
	for v := range 256 {
		cum += hist[v]
		if cum > clip {
			lo = v
			break
		}
	}
	hi, cum := 255, 0
	for v := 255; v >= 0; v-- {
		cum += hist[v]
		if cum > clip {
			hi = v
			break
		}
	}
	if hi <= lo || (lo == 0 && hi == 255) {
		return img, false
	}

	var lut [256]uint8
	scale := 255 / float64(hi-lo)
	for v := range 256 {
		switch {
		case v <= lo:
			lut[v] = 0
		case v >= hi:
			lut[v] = 255
		default:
			lut[v] = uint8(math.Round(float64(v-lo) * scale))
		}
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x, v := range src {
			dst[x] = lut[v]
		}
	}
	return out, true
}

func sharpen(img *image.Gray, sigma float64) *image.Gray {
	return utils.ToGray(imaging.Sharpen(img, sigma))
}

// fitWithin downsizes img so its longest side is at most maxDim.
func fitWithin(img *image.Gray, maxDim int) (*image.Gray, bool) {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img, false
	}
	return utils.ToGray(imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)), true
}

// textLinesVertical estimates whether text lines run vertically by comparing
// binarized luminance transitions along rows and columns of a 128x128
// thumbnail. Horizontal text produces more row transitions.
func textLinesVertical(img *image.Gray) (bool, float64) {
	thumb := utils.ToGray(imaging.Resize(img, 128, 128, imaging.Lanczos))
	b := thumb.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return false, 0
	}

	var sum float64
	for _, v := range thumb.Pix {
		sum += float64(v)
	}
	mean := sum / float64(len(thumb.Pix))
	on := func(x, y int) bool { return float64(thumb.Pix[y*thumb.Stride+x]) < mean }

	var rows, cols float64
	for y := range h {
		for x := 1; x < w; x++ {
			if on(x, y) != on(x-1, y) {
				rows++
			}
		}
	}
	for x := range w {
		for y := 1; y < h; y++ {
			if on(x, y) != on(x, y-1) {
				cols++
			}
		}
	}
	total := rows + cols
	if total == 0 {
		return false, 0
	}
	if cols > rows {
		return true, (cols - rows) / total
	}
	return false, (rows - cols) / total
}
