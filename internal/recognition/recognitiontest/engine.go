// Package recognitiontest provides a scriptable recognition engine for tests.
package recognitiontest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/recognition"
)

// Engine returns fixed tokens after an optional scripted sequence of
// failures, delays and gates.
type Engine struct {
	mu          sync.Mutex
	tokens      []document.TextToken
	failures    []error
	delay       time.Duration
	gate        chan struct{}
	calls       int
	interrupted int
	started     chan struct{}
}

// New returns an engine that always succeeds with tokens.
func New(tokens []document.TextToken) *Engine {
	return &Engine{tokens: append([]document.TextToken(nil), tokens...), started: make(chan struct{}, 64)}
}

// FailTimes makes the next n calls fail with a transient error.
func (e *Engine) FailTimes(n int) *Engine {
	for range n {
		e.FailWith(recognition.Unavailable("fake", errors.New("connection refused")))
	}
	return e
}

// FailWith queues err as the result of the next unconsumed call.
func (e *Engine) FailWith(err error) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, err)
	return e
}

// WithDelay makes every call take d, honoring cancellation.
func (e *Engine) WithDelay(d time.Duration) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
	return e
}

// Gate blocks every call until Release is called or its context ends.
func (e *Engine) Gate() *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = make(chan struct{})
	return e
}

// Release opens the gate.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
}

// Started receives one value per call as it begins.
func (e *Engine) Started() <-chan struct{} { return e.started }

// Calls returns the number of calls so far.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Interrupted returns how many calls ended on a done context.
func (e *Engine) Interrupted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interrupted
}

func (e *Engine) interrupt(ctx context.Context) error {
	e.mu.Lock()
	e.interrupted++
	e.mu.Unlock()
	return ctx.Err()
}

// Name implements recognition.Engine.
func (e *Engine) Name() string { return "fake" }

// Recognize implements recognition.Engine.
func (e *Engine) Recognize(ctx context.Context, _ document.NormalizedImage) ([]document.TextToken, error) {
	e.mu.Lock()
	e.calls++
	var failure error
	if len(e.failures) > 0 {
		failure = e.failures[0]
		e.failures = e.failures[1:]
	}
	delay, gate := e.delay, e.gate
	tokens := append([]document.TextToken(nil), e.tokens...)
	e.mu.Unlock()

	select {
	case e.started <- struct{}{}:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, e.interrupt(ctx)
		}
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, e.interrupt(ctx)
		}
	}
	if failure != nil {
		return nil, failure
	}
	return tokens, nil
}
