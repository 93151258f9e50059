package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "idscan"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "IDSCAN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on an isolated viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and sets defaults.
// It returns the loaded configuration and any error encountered.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation loads configuration like Load but skips validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		// Check if file exists
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we'll use defaults and env vars
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()

	// Replace dots and dashes with underscores in env var names
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
// Durations are stored in their string form so generated files stay readable.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	// Templates
	l.v.SetDefault("templates.dir", d.Templates.Dir)
	l.v.SetDefault("templates.builtin", d.Templates.Builtin)

	// Normalizer
	n := d.Pipeline.Normalize
	l.v.SetDefault("pipeline.normalize.min_aspect", n.MinAspect)
	l.v.SetDefault("pipeline.normalize.max_aspect", n.MaxAspect)
	l.v.SetDefault("pipeline.normalize.min_area_ratio", n.MinAreaRatio)
	l.v.SetDefault("pipeline.normalize.max_dimension", n.MaxDimension)
	l.v.SetDefault("pipeline.normalize.contrast_stretch", n.ContrastStretch)
	l.v.SetDefault("pipeline.normalize.sharpen", n.Sharpen)
	l.v.SetDefault("pipeline.normalize.auto_rotate", n.AutoRotate)
	l.v.SetDefault("pipeline.normalize.model_path", n.ModelPath)
	l.v.SetDefault("pipeline.normalize.model_threshold", n.ModelThreshold)
	l.v.SetDefault("pipeline.normalize.model_threads", n.ModelThreads)

	// Recognition
	r := d.Pipeline.Recognition
	backoff := make([]string, len(r.Backoff))
	for i, b := range r.Backoff {
		backoff[i] = b.String()
	}
	l.v.SetDefault("pipeline.recognition.engine", r.Engine)
	l.v.SetDefault("pipeline.recognition.tokens_file", r.TokensFile)
	l.v.SetDefault("pipeline.recognition.remote_url", r.RemoteURL)
	l.v.SetDefault("pipeline.recognition.api_key", r.APIKey)
	l.v.SetDefault("pipeline.recognition.languages", r.Languages)
	l.v.SetDefault("pipeline.recognition.timeout", r.Timeout.String())
	l.v.SetDefault("pipeline.recognition.max_retries", r.MaxRetries)
	l.v.SetDefault("pipeline.recognition.backoff", backoff)
	l.v.SetDefault("pipeline.recognition.confidence_floor", r.ConfidenceFloor)

	// Classification, extraction, validation
	l.v.SetDefault("pipeline.classify.min_score", d.Pipeline.Classify.MinScore)
	l.v.SetDefault("pipeline.classify.region_credit", d.Pipeline.Classify.RegionCredit)
	l.v.SetDefault("pipeline.extract.gap_factor", d.Pipeline.Extract.GapFactor)
	l.v.SetDefault("pipeline.extract.below_penalty", d.Pipeline.Extract.BelowPenalty)
	l.v.SetDefault("pipeline.extract.distance_decay", d.Pipeline.Extract.DistanceDecay)
	l.v.SetDefault("pipeline.validate.low_confidence", d.Pipeline.Validate.LowConfidence)
	l.v.SetDefault("pipeline.validate.degraded_factor", d.Pipeline.Validate.DegradedFactor)

	// Output defaults
	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)

	// Server defaults
	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_enabled", d.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", d.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", d.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", d.Server.MaxDataPerDay)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteResolvedConfig writes the resolved settings as YAML.
func (l *Loader) WriteResolvedConfig(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(l.GetResolvedConfig()); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultConfigFile writes a configuration file holding every default.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	// If no filename provided, use default
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if err := loader.WriteResolvedConfig(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, "idscan"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "idscan"))
	}

	paths = append(paths, "/etc/idscan")

	return paths
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
