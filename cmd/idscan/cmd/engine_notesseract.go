//go:build !tesseract

package cmd

import (
	"errors"

	"github.com/MeKo-Tech/idscan/internal/recognition"
)

func newTesseractEngine([]string) (recognition.Engine, error) {
	return nil, errors.New("tesseract engine not compiled in, rebuild with -tags tesseract")
}
