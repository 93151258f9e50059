package validate

import "fmt"

// Config holds the validation policy.
type Config struct {
	// LowConfidence flags fields whose confidence falls below it.
	LowConfidence float64
	// DegradedFactor scales field confidences when the capture fell back to
	// the full frame or the generic template.
	DegradedFactor float64
}

// DefaultConfig returns the default validation policy.
func DefaultConfig() Config {
	return Config{LowConfidence: 0.5, DegradedFactor: 0.8}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.LowConfidence < 0 || c.LowConfidence > 1 {
		return fmt.Errorf("low confidence threshold must be in [0,1], got %.2f", c.LowConfidence)
	}
	if c.DegradedFactor <= 0 || c.DegradedFactor > 1 {
		return fmt.Errorf("degraded confidence factor must be in (0,1], got %.2f", c.DegradedFactor)
	}
	return nil
}
