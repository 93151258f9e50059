//go:build tesseract

package cmd

import (
	"github.com/MeKo-Tech/idscan/internal/recognition"
	"github.com/MeKo-Tech/idscan/internal/recognition/tesseract"
)

func newTesseractEngine(languages []string) (recognition.Engine, error) {
	return tesseract.New(languages...), nil
}
