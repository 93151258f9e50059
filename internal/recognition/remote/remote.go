// Package remote implements a recognition engine backed by an HTTP service.
//
// The service receives POST {url} with a JSON body
//
//	{"image": "<base64 PNG>", "width": 1000, "height": 630, "languages": ["eng"]}
//
// and answers with a token recording as read by recognition.ParseRecording.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/recognition"
)

const maxResponseSize = 8 << 20

// Engine calls a remote recognition service.
type Engine struct {
	url       string
	apiKey    string
	languages []string
	client    *http.Client
}

// Option configures an Engine.
type Option func(*Engine)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(e *Engine) { e.apiKey = key }
}

// WithLanguages sets language hints.
func WithLanguages(langs ...string) Option {
	return func(e *Engine) { e.languages = append([]string(nil), langs...) }
}

// WithHTTPClient replaces the HTTP client. Timeouts are applied per call by
// the recognition adapter through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// New creates a remote engine for url.
func New(url string, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("remote recognition url is required")
	}
	e := &Engine{url: url, client: &http.Client{}}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type recognizeRequest struct {
	Image     string   `json:"image"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Languages []string `json:"languages,omitempty"`
}

// Name implements recognition.Engine.
func (e *Engine) Name() string { return "remote" }

// Recognize implements recognition.Engine. Transport errors, 429 and 5xx
// responses are reported as unavailable; other non-200 responses are final.
func (e *Engine) Recognize(ctx context.Context, img document.NormalizedImage) ([]document.TextToken, error) {
	if img.Image == nil {
		return nil, errors.New("no image to recognize")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Image); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	body, err := json.Marshal(recognizeRequest{
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:     img.Width(),
		Height:    img.Height(),
		Languages: e.languages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, recognition.Unavailable(e.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, recognition.Unavailable(e.Name(), fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, recognition.Unavailable(e.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, snippet(data)))
	default:
		return nil, fmt.Errorf("recognition service rejected request (status %d): %s", resp.StatusCode, snippet(data))
	}

	replay, err := recognition.ParseRecording(data)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return replay.Recognize(ctx, img)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
