package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/heic"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pdf"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

var errEmptyCapture = errors.New("zero-byte capture")

// Decode turns capture bytes into a raster. The declared format selects the
// HEIC and PDF paths; raster formats are sniffed from the bytes.
func Decode(raw document.RawCapture) (image.Image, error) {
	if raw.Len() == 0 {
		return nil, &DecodeError{Format: raw.Format, Err: errEmptyCapture}
	}
	data := raw.Bytes()

	var (
		img image.Image
		err error
	)
	switch {
	case raw.Format == document.FormatPDF || utils.IsPDF(data):
		img, err = pdf.FirstPageImage(data)
	case raw.Format == document.FormatHEIC || utils.IsHEIC(data):
		img, err = heic.Decode(bytes.NewReader(data))
	default:
		img, _, err = utils.DecodeRaster(data)
	}
	if err != nil {
		return nil, &DecodeError{Format: raw.Format, Err: err}
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Format: raw.Format, Err: fmt.Errorf("empty raster %dx%d", b.Dx(), b.Dy())}
	}
	return img, nil
}
