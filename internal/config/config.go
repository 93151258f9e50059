package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/classify"
	"github.com/MeKo-Tech/idscan/internal/extract"
	"github.com/MeKo-Tech/idscan/internal/normalize"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
	"github.com/MeKo-Tech/idscan/internal/recognition"
	"github.com/MeKo-Tech/idscan/internal/validate"
)

// Recognition engines selectable by name.
const (
	EngineReplay    = "replay"
	EngineRemote    = "remote"
	EngineTesseract = "tesseract"
)

const infoLevel = "info"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	norm := normalize.DefaultConfig()
	rec := recognition.DefaultConfig()
	cls := classify.DefaultConfig()
	ext := extract.DefaultConfig()
	val := validate.DefaultConfig()

	return Config{
		LogLevel: infoLevel,
		Verbose:  false,
		Templates: TemplatesConfig{
			Builtin: true,
		},
		Pipeline: PipelineConfig{
			Normalize: NormalizeConfig{
				MinAspect:       norm.MinAspect,
				MaxAspect:       norm.MaxAspect,
				MinAreaRatio:    norm.MinAreaRatio,
				MaxDimension:    norm.MaxDimension,
				ContrastStretch: norm.ContrastStretch,
				Sharpen:         norm.Sharpen,
				AutoRotate:      norm.AutoRotate,
				ModelThreshold:  norm.Model.MaskThreshold,
			},
			Recognition: RecognitionConfig{
				Engine:          EngineReplay,
				Languages:       []string{"eng"},
				Timeout:         rec.Timeout,
				MaxRetries:      rec.MaxRetries,
				Backoff:         rec.Backoff,
				ConfidenceFloor: rec.ConfidenceFloor,
			},
			Classify: ClassifyConfig{
				MinScore:     cls.MinScore,
				RegionCredit: cls.RegionCredit,
			},
			Extract: ExtractConfig{
				GapFactor:     ext.GapFactor,
				BelowPenalty:  ext.BelowPenalty,
				DistanceDecay: ext.DistanceDecay,
			},
			Validate: ValidateConfig{
				LowConfidence:  val.LowConfidence,
				DegradedFactor: val.DegradedFactor,
			},
		},
		Output: OutputConfig{
			Format: pipeline.FormatJSON,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      60,
			ShutdownTimeout: 10,

			RateLimitEnabled:  false,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     500 * 1024 * 1024,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := []string{"debug", infoLevel, "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	// Validate output format
	validFormats := []string{pipeline.FormatJSON, pipeline.FormatText, pipeline.FormatCSV}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	// Validate engine selection
	rec := c.Pipeline.Recognition
	validEngines := []string{EngineReplay, EngineRemote, EngineTesseract}
	if !slices.Contains(validEngines, rec.Engine) {
		return fmt.Errorf("invalid recognition engine: %s (must be one of: %s)", rec.Engine, strings.Join(validEngines, ", "))
	}
	if rec.Engine == EngineRemote && rec.RemoteURL == "" {
		return fmt.Errorf("recognition engine %s requires pipeline.recognition.remote_url", EngineRemote)
	}

	// Validate server settings
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	// Stage settings carry their own checks.
	if err := c.ToPipelineConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// ToPipelineConfig converts the config to the internal pipeline configuration format.
func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Normalize:      c.toNormalizeConfig(),
		Recognition:    c.toRecognitionConfig(),
		Classify:       classify.Config{MinScore: c.Pipeline.Classify.MinScore, RegionCredit: c.Pipeline.Classify.RegionCredit},
		Extract:        c.toExtractConfig(),
		Validation:     validate.Config{LowConfidence: c.Pipeline.Validate.LowConfidence, DegradedFactor: c.Pipeline.Validate.DegradedFactor},
		TemplatesDir:   c.Templates.Dir,
		IncludeBuiltin: c.Templates.Builtin,
	}
}

// toNormalizeConfig converts to normalize.Config.
func (c *Config) toNormalizeConfig() normalize.Config {
	in := c.Pipeline.Normalize
	cfg := normalize.DefaultConfig()
	cfg.MinAspect = in.MinAspect
	cfg.MaxAspect = in.MaxAspect
	cfg.MinAreaRatio = in.MinAreaRatio
	cfg.MaxDimension = in.MaxDimension
	cfg.ContrastStretch = in.ContrastStretch
	cfg.Sharpen = in.Sharpen
	cfg.AutoRotate = in.AutoRotate
	if in.ModelPath != "" {
		cfg.Model.Enabled = true
		cfg.Model.ModelPath = in.ModelPath
	}
	if in.ModelThreshold > 0 {
		cfg.Model.MaskThreshold = in.ModelThreshold
	}
	cfg.Model.NumThreads = in.ModelThreads
	return cfg
}

// toRecognitionConfig converts to recognition.Config.
func (c *Config) toRecognitionConfig() recognition.Config {
	in := c.Pipeline.Recognition
	return recognition.Config{
		Timeout:         in.Timeout,
		MaxRetries:      in.MaxRetries,
		Backoff:         append([]time.Duration(nil), in.Backoff...),
		ConfidenceFloor: in.ConfidenceFloor,
	}
}

// toExtractConfig converts to extract.Config.
func (c *Config) toExtractConfig() extract.Config {
	return extract.Config{
		GapFactor:     c.Pipeline.Extract.GapFactor,
		BelowPenalty:  c.Pipeline.Extract.BelowPenalty,
		DistanceDecay: c.Pipeline.Extract.DistanceDecay,
	}
}
