// Package recognition adapts text recognition engines to the scan pipeline:
// per-attempt timeouts, bounded retries on unavailability and confidence
// post-processing of the returned tokens.
package recognition

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/idscan/internal/document"
)

// Engine recognizes text on a normalized image. An empty token slice is a
// valid result. Transient failures (engine unreachable, overloaded, not yet
// started) must match ErrUnavailable; every other error is final.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img document.NormalizedImage) ([]document.TextToken, error)
}

// ErrUnavailable marks transient engine failures worth retrying.
var ErrUnavailable = errors.New("recognition engine unavailable")

// UnavailableError reports an engine that could not be reached or invoked.
// The adapter returns it once retries are exhausted.
type UnavailableError struct {
	Engine   string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("recognition engine %s unavailable after %d attempts: %v", e.Engine, e.Attempts, e.Err)
	}
	return fmt.Sprintf("recognition engine %s unavailable: %v", e.Engine, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps a transient engine failure.
func Unavailable(engine string, err error) error {
	return &UnavailableError{Engine: engine, Attempts: 1, Err: err}
}

// IsRetryable reports whether err is a transient engine failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
