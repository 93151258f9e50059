//go:build tesseract

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/recognition"
)

// Engine runs Tesseract word recognition on the canonical image.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract engine. Languages default to "eng".
func New(languages ...string) *Engine {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Engine{languages: languages, clientFactory: gosseract.NewClient}
}

// Name implements recognition.Engine.
func (e *Engine) Name() string { return "tesseract" }

// Recognize implements recognition.Engine. The engine cannot be
// interrupted; the adapter's timeout abandons the call instead.
func (e *Engine) Recognize(ctx context.Context, img document.NormalizedImage) ([]document.TextToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, recognition.Unavailable(e.Name(), fmt.Errorf("set languages: %w", err))
	}
	if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return nil, fmt.Errorf("set page segmentation: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	script := strings.Join(e.languages, "+")
	tokens := make([]document.TextToken, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, document.TextToken{
			Index: len(tokens),
			Text:  b.Word,
			Box: document.RectQuad(float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Dx()), float64(b.Box.Dy())),
			Confidence: b.Confidence / 100.0,
			Script:     script,
		})
	}
	return tokens, nil
}
