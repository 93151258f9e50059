//nolint:lll
package config

import "time"

// Config represents the complete configuration for the idscan application.
// It includes settings for all commands (scan, serve, templates) and
// supports loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Template set
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates" json:"templates"`

	// Pipeline stages
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// TemplatesConfig selects the document templates.
type TemplatesConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Builtin bool   `mapstructure:"builtin" yaml:"builtin" json:"builtin"`
}

// PipelineConfig contains the per-stage settings.
type PipelineConfig struct {
	Normalize   NormalizeConfig   `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`
	Classify    ClassifyConfig    `mapstructure:"classify" yaml:"classify" json:"classify"`
	Extract     ExtractConfig     `mapstructure:"extract" yaml:"extract" json:"extract"`
	Validate    ValidateConfig    `mapstructure:"validate" yaml:"validate" json:"validate"`
}

// NormalizeConfig contains image normalization settings.
type NormalizeConfig struct {
	MinAspect       float64 `mapstructure:"min_aspect" yaml:"min_aspect" json:"min_aspect"`
	MaxAspect       float64 `mapstructure:"max_aspect" yaml:"max_aspect" json:"max_aspect"`
	MinAreaRatio    float64 `mapstructure:"min_area_ratio" yaml:"min_area_ratio" json:"min_area_ratio"`
	MaxDimension    int     `mapstructure:"max_dimension" yaml:"max_dimension" json:"max_dimension"`
	ContrastStretch bool    `mapstructure:"contrast_stretch" yaml:"contrast_stretch" json:"contrast_stretch"`
	Sharpen         float64 `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`
	AutoRotate      bool    `mapstructure:"auto_rotate" yaml:"auto_rotate" json:"auto_rotate"`

	// Optional ONNX boundary model
	ModelPath      string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	ModelThreshold float64 `mapstructure:"model_threshold" yaml:"model_threshold" json:"model_threshold"`
	ModelThreads   int     `mapstructure:"model_threads" yaml:"model_threads" json:"model_threads"`
}

// RecognitionConfig selects and tunes the text recognition engine.
type RecognitionConfig struct {
	Engine          string          `mapstructure:"engine" yaml:"engine" json:"engine"`
	TokensFile      string          `mapstructure:"tokens_file" yaml:"tokens_file" json:"tokens_file"`
	RemoteURL       string          `mapstructure:"remote_url" yaml:"remote_url" json:"remote_url"`
	APIKey          string          `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	Languages       []string        `mapstructure:"languages" yaml:"languages" json:"languages"`
	Timeout         time.Duration   `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxRetries      int             `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Backoff         []time.Duration `mapstructure:"backoff" yaml:"backoff" json:"backoff"`
	ConfidenceFloor float64         `mapstructure:"confidence_floor" yaml:"confidence_floor" json:"confidence_floor"`
}

// ClassifyConfig contains layout classification settings.
type ClassifyConfig struct {
	MinScore     float64 `mapstructure:"min_score" yaml:"min_score" json:"min_score"`
	RegionCredit float64 `mapstructure:"region_credit" yaml:"region_credit" json:"region_credit"`
}

// ExtractConfig contains field extraction heuristics.
type ExtractConfig struct {
	GapFactor     float64 `mapstructure:"gap_factor" yaml:"gap_factor" json:"gap_factor"`
	BelowPenalty  float64 `mapstructure:"below_penalty" yaml:"below_penalty" json:"below_penalty"`
	DistanceDecay float64 `mapstructure:"distance_decay" yaml:"distance_decay" json:"distance_decay"`
}

// ValidateConfig contains field validation settings.
type ValidateConfig struct {
	LowConfidence  float64 `mapstructure:"low_confidence" yaml:"low_confidence" json:"low_confidence"`
	DegradedFactor float64 `mapstructure:"degraded_factor" yaml:"degraded_factor" json:"degraded_factor"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Rate limiting for POST /scan
	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}
