package normalize

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/idscan/internal/document"
)

// ErrBoundaryNotFound is matched by every BoundaryNotFoundError.
var ErrBoundaryNotFound = errors.New("document boundary not found")

// DecodeError reports capture bytes that do not decode to a raster image.
type DecodeError struct {
	Format document.Format
	Err    error
}

func (e *DecodeError) Error() string {
	format := string(e.Format)
	if format == "" {
		format = "auto"
	}
	return fmt.Sprintf("decode %s capture: %v", format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BoundaryNotFoundError reports that no plausible document-shaped region was
// found. The normalizer attaches it to the full-frame fallback image.
type BoundaryNotFoundError struct {
	Reason string
}

func (e *BoundaryNotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrBoundaryNotFound, e.Reason)
}

func (e *BoundaryNotFoundError) Is(target error) bool { return target == ErrBoundaryNotFound }

func boundaryNotFound(format string, args ...any) error {
	return &BoundaryNotFoundError{Reason: fmt.Sprintf(format, args...)}
}
