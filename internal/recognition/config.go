package recognition

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the adapter policy knobs.
type Config struct {
	Timeout         time.Duration   // bound for one engine call
	MaxRetries      int             // retries after the first attempt
	Backoff         []time.Duration // wait before retry n; the last entry repeats
	ConfidenceFloor float64         // tokens below are marked low-confidence
}

// DefaultConfig returns the default recognition policy.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		Backoff:         []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond},
		ConfidenceFloor: 0.3,
	}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("recognition timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	for i, d := range c.Backoff {
		if d < 0 {
			return fmt.Errorf("backoff %d must not be negative", i)
		}
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence floor must be in [0,1], got %.2f", c.ConfidenceFloor)
	}
	return nil
}

// backoff returns the wait before retry n (0-based).
func (c Config) backoff(n int) time.Duration {
	if len(c.Backoff) == 0 {
		return 0
	}
	if n >= len(c.Backoff) {
		return c.Backoff[len(c.Backoff)-1]
	}
	return c.Backoff[n]
}
