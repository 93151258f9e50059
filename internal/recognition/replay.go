package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// ReplayEngine serves recorded tokens instead of running recognition. Boxes
// are rescaled when the recording was made on a different image size.
type ReplayEngine struct {
	tokens []document.TextToken
	width  int
	height int
}

// Recording is the on-disk replay format.
type Recording struct {
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
	Tokens []RecordedToken `json:"tokens"`
}

// RecordedToken is one token of a recording. Either Box or Rect (x, y, w, h)
// gives the position; a missing confidence means 1.
type RecordedToken struct {
	Text       string         `json:"text"`
	Box        *document.Quad `json:"box,omitempty"`
	Rect       []float64      `json:"rect,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Script     string         `json:"script,omitempty"`
}

// NewReplayEngine replays tokens recorded on a width x height image. A zero
// size disables rescaling.
func NewReplayEngine(tokens []document.TextToken, width, height int) *ReplayEngine {
	return &ReplayEngine{tokens: append([]document.TextToken(nil), tokens...), width: width, height: height}
}

// LoadReplayFile reads a recording from path.
func LoadReplayFile(path string) (*ReplayEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token recording: %w", err)
	}
	return ParseRecording(data)
}

// ParseRecording decodes a recording: either a Recording object or a bare
// token array.
func ParseRecording(data []byte) (*ReplayEngine, error) {
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		var bare []RecordedToken
		if err2 := json.Unmarshal(data, &bare); err2 != nil {
			return nil, fmt.Errorf("parse token recording: %w", err)
		}
		rec = Recording{Tokens: bare}
	}

	tokens := make([]document.TextToken, 0, len(rec.Tokens))
	for i, rt := range rec.Tokens {
		tok := document.TextToken{Index: i, Text: rt.Text, Script: rt.Script, Confidence: 1}
		switch {
		case rt.Box != nil:
			tok.Box = *rt.Box
		case len(rt.Rect) == 4:
			tok.Box = document.RectQuad(rt.Rect[0], rt.Rect[1], rt.Rect[2], rt.Rect[3])
		default:
			return nil, fmt.Errorf("token %d (%q): box or rect [x, y, w, h] required", i, rt.Text)
		}
		if rt.Confidence != nil {
			tok.Confidence = *rt.Confidence
		}
		tokens = append(tokens, tok)
	}
	return NewReplayEngine(tokens, rec.Width, rec.Height), nil
}

// NewRecording converts tokens into the replay format.
func NewRecording(tokens []document.TextToken, width, height int) Recording {
	rec := Recording{Width: width, Height: height, Tokens: make([]RecordedToken, len(tokens))}
	for i, t := range tokens {
		box := t.Box
		conf := t.Confidence
		rec.Tokens[i] = RecordedToken{Text: t.Text, Box: &box, Confidence: &conf, Script: t.Script}
	}
	return rec
}

// Name implements Engine.
func (e *ReplayEngine) Name() string { return "replay" }

// Recognize implements Engine.
func (e *ReplayEngine) Recognize(ctx context.Context, img document.NormalizedImage) ([]document.TextToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.New("replay engine has no recording")
	}
	out := append([]document.TextToken(nil), e.tokens...)
	if e.width <= 0 || e.height <= 0 || img.Width() == 0 || img.Height() == 0 ||
		(img.Width() == e.width && img.Height() == e.height) {
		return out, nil
	}
	sx := float64(img.Width()) / float64(e.width)
	sy := float64(img.Height()) / float64(e.height)
	for i := range out {
		for j, p := range out[i].Box {
			out[i].Box[j] = utils.ScalePoint(p, sx, sy)
		}
	}
	return out, nil
}
