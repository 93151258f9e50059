package normalize

import (
	"errors"
	"fmt"
)

// Config holds configuration for the image normalizer.
type Config struct {
	MinAspect         float64 // min long/short side ratio of a plausible document
	MaxAspect         float64 // max long/short side ratio of a plausible document
	MinAreaRatio      float64 // min document area relative to the frame (0-1)
	DetectionSize     int     // max side of the thumbnail used for boundary detection
	MaxDimension      int     // max side of the normalized output, 0 keeps the rectified size
	MaxSkew           float64 // max corner offset (relative to frame size) at which the frame counts as already cropped
	SolidFill         float64 // min fill ratio of a dark region on a bright frame to count as the document
	ContrastStretch   bool    // enable percentile contrast stretching
	ClipPercent       float64 // percentile clipped at each end of the histogram (0-50)
	Sharpen           float64 // unsharp sigma, 0 disables sharpening
	AutoRotate        bool    // rotate portrait results whose text lines run vertically
	OrientationMargin float64 // min transition-imbalance confidence before rotating (0-1)
	Model             ModelConfig
}

// ModelConfig configures the optional ONNX boundary model.
type ModelConfig struct {
	Enabled       bool
	ModelPath     string
	MaskThreshold float64 // threshold for mask extraction (0-1)
	InputSize     int     // square model input side, multiple of 32
	NumThreads    int     // number of threads for ONNX inference (0 = auto)
}

// DefaultConfig returns sensible defaults for identity document captures.
func DefaultConfig() Config {
	return Config{
		MinAspect:         1.2,
		MaxAspect:         1.8,
		MinAreaRatio:      0.2,
		DetectionSize:     512,
		MaxDimension:      2000,
		MaxSkew:           0.02,
		SolidFill:         0.6,
		ContrastStretch:   true,
		ClipPercent:       1,
		Sharpen:           0,
		AutoRotate:        true,
		OrientationMargin: 0.1,
		Model: ModelConfig{
			Enabled:       false,
			MaskThreshold: 0.5,
			InputSize:     512,
		},
	}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.MinAspect < 1 || c.MaxAspect < c.MinAspect {
		return fmt.Errorf("invalid aspect range [%.2f, %.2f]", c.MinAspect, c.MaxAspect)
	}
	if c.MinAreaRatio <= 0 || c.MinAreaRatio > 1 {
		return fmt.Errorf("min area ratio must be in (0,1], got %.2f", c.MinAreaRatio)
	}
	if c.MaxSkew < 0 || c.MaxSkew >= 0.5 {
		return fmt.Errorf("max skew must be in [0,0.5), got %.2f", c.MaxSkew)
	}
	if c.SolidFill <= 0 || c.SolidFill > 1 {
		return fmt.Errorf("solid fill must be in (0,1], got %.2f", c.SolidFill)
	}
	if c.DetectionSize < 32 {
		return errors.New("detection size must be at least 32")
	}
	if c.MaxDimension < 0 {
		return errors.New("max dimension must not be negative")
	}
	if c.ClipPercent < 0 || c.ClipPercent >= 50 {
		return fmt.Errorf("clip percent must be in [0,50), got %.2f", c.ClipPercent)
	}
	if c.Sharpen < 0 {
		return errors.New("sharpen sigma must not be negative")
	}
	if c.Model.Enabled && c.Model.ModelPath == "" {
		return errors.New("boundary model enabled without a model path")
	}
	return nil
}
