package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
)

// Adapter wraps an Engine with the recognition policy. It is safe for
// concurrent use when the engine is.
type Adapter struct {
	engine Engine
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewAdapter creates an adapter for engine.
func NewAdapter(engine Engine, cfg Config) (*Adapter, error) {
	if engine == nil {
		return nil, errors.New("recognition engine is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recognition config: %w", err)
	}
	return &Adapter{engine: engine, cfg: cfg, sleep: sleepContext}, nil
}

// WithSleep replaces the backoff wait, for tests.
func (a *Adapter) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Adapter {
	a.sleep = fn
	return a
}

// Engine returns the wrapped engine's name.
func (a *Adapter) Engine() string { return a.engine.Name() }

// Config returns the adapter configuration.
func (a *Adapter) Config() Config { return a.cfg }

// Recognize runs the engine with timeout and retry. Unavailability and
// attempt timeouts are retried MaxRetries times; exhaustion returns an
// *UnavailableError. Cancellation of ctx stops immediately.
func (a *Adapter) Recognize(ctx context.Context, img document.NormalizedImage) ([]document.TextToken, error) {
	name := a.engine.Name()
	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := a.cfg.backoff(attempt - 1)
			slog.Warn("Recognition unavailable, retrying",
				"engine", name, "attempt", attempt+1, "backoff", wait, "error", lastErr)
			if err := a.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		tokens, err := a.attempt(ctx, img)
		if err == nil {
			attemptsTotal.WithLabelValues(name, "ok").Inc()
			out := postProcess(tokens, a.cfg.ConfidenceFloor)
			tokensRecognized.WithLabelValues(name).Observe(float64(len(out)))
			slog.Debug("Recognition finished", "engine", name, "attempts", attempt+1, "tokens", len(out))
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) {
			attemptsTotal.WithLabelValues(name, "error").Inc()
			return nil, fmt.Errorf("recognition engine %s: %w", name, err)
		}
		attemptsTotal.WithLabelValues(name, outcome(err)).Inc()
		lastErr = err
	}
	return nil, &UnavailableError{Engine: name, Attempts: a.cfg.MaxRetries + 1, Err: lastErr}
}

var errAttemptTimeout = errors.New("attempt timed out")

type attemptResult struct {
	tokens []document.TextToken
	err    error
}

// attempt runs one engine call bounded by the timeout. An engine that
// ignores its context is left to finish in the background; its result is
// discarded.
func (a *Adapter) attempt(ctx context.Context, img document.NormalizedImage) ([]document.TextToken, error) {
	actx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		tokens, err := a.engine.Recognize(actx, img)
		done <- attemptResult{tokens: tokens, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, timeoutError(a.engine.Name(), a.cfg.Timeout)
		}
		return r.tokens, r.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timeoutError(a.engine.Name(), a.cfg.Timeout)
	}
}

func timeoutError(engine string, d time.Duration) error {
	return Unavailable(engine, fmt.Errorf("%w after %s", errAttemptTimeout, d))
}

func outcome(err error) string {
	if errors.Is(err, errAttemptTimeout) {
		return "timeout"
	}
	return "unavailable"
}

// postProcess clamps confidences, marks low-confidence tokens, drops blank
// tokens and renumbers the rest in returned order.
func postProcess(tokens []document.TextToken, floor float64) []document.TextToken {
	out := make([]document.TextToken, 0, len(tokens))
	for _, t := range tokens {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" {
			continue
		}
		switch {
		case math.IsNaN(t.Confidence) || t.Confidence < 0:
			t.Confidence = 0
		case t.Confidence > 1:
			t.Confidence = 1
		}
		t.LowConfidence = t.Confidence < floor
		t.Index = len(out)
		out = append(out, t)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
