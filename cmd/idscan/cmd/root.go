package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/idscan/internal/config"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
	// Log destination, stderr so results on stdout stay parseable.
	logOutput io.Writer = os.Stderr
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "idscan",
	Short: "Identity document capture to structured fields",
	Long: `idscan turns a photo of an identity document (driver license, ID card,
passport, health card) into structured, validated fields.

A capture is normalized to a canonical card image, its text is recognized by a
pluggable engine, the layout is matched against versioned templates and every
declared field is extracted, normalized and validated.

Examples:
  idscan scan front.jpg --tokens front.tokens.json
  idscan scan front.heic --engine remote --remote-url http://ocr:9000/recognize --format text
  idscan templates
  idscan serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.PersistentFlags().GetBool("version")
		if v {
			printVersion(cmd.OutOrStdout())
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/idscan, /etc/idscan)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Bool("version", false, "print version information and exit")

	// Pipeline selection shared by scan and serve
	pf.String("engine", config.EngineReplay, "recognition engine (replay, remote, tesseract)")
	pf.String("tokens", "", "recorded tokens file for the replay engine")
	pf.String("remote-url", "", "recognition service URL for the remote engine")
	pf.String("api-key", "", "API key for the remote engine")
	pf.StringSlice("languages", []string{"eng"}, "recognition languages")
	pf.String("templates-dir", "", "directory with additional template definitions")
	pf.String("boundary-model", "", "ONNX document segmentation model for boundary detection")

	bindings := []struct{ key, flag string }{
		{"verbose", "verbose"},
		{"log_level", "log-level"},
		{"pipeline.recognition.engine", "engine"},
		{"pipeline.recognition.tokens_file", "tokens"},
		{"pipeline.recognition.remote_url", "remote-url"},
		{"pipeline.recognition.api_key", "api-key"},
		{"pipeline.recognition.languages", "languages"},
		{"templates.dir", "templates-dir"},
		{"pipeline.normalize.model_path", "boundary-model"},
	}
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, pf.Lookup(b.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", b.flag, err))
		}
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if globalConfig == nil {
			initConfig()
		}
		cfg := GetConfig()

		logLevel := slog.LevelInfo
		if cfg.Verbose {
			logLevel = slog.LevelDebug
		} else {
			switch cfg.LogLevel {
			case "debug":
				logLevel = slog.LevelDebug
			case "warn":
				logLevel = slog.LevelWarn
			case "error":
				logLevel = slog.LevelError
			}
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{Level: logLevel})))
	}
}

// initConfig reads in config file and ENV variables if set. Validation is
// left to the commands, so `config init` works with a broken file.
func initConfig() {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFileWithoutValidation(cfgFile)
	} else {
		globalConfig, err = configLoader.LoadWithoutValidation()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// GetConfig returns the configuration including CLI flag overrides.
func GetConfig() *config.Config {
	if globalConfig == nil {
		initConfig()
	}

	// Flags are bound after the initial load, unmarshal again to see them.
	var cfg config.Config
	if err := GetConfigLoader().GetViper().Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshaling updated configuration: %v\n", err)
		return globalConfig
	}
	return &cfg
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
