package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/idscan/internal/config"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
	"github.com/MeKo-Tech/idscan/internal/recognition"
	"github.com/MeKo-Tech/idscan/internal/recognition/remote"
)

// newEngine constructs the recognition engine selected in cfg.
func newEngine(cfg *config.Config) (recognition.Engine, error) {
	rec := cfg.Pipeline.Recognition
	switch rec.Engine {
	case config.EngineReplay:
		if rec.TokensFile == "" {
			return nil, errors.New("replay engine requires --tokens (pipeline.recognition.tokens_file)")
		}
		return recognition.LoadReplayFile(rec.TokensFile)
	case config.EngineRemote:
		opts := []remote.Option{remote.WithLanguages(rec.Languages...)}
		if rec.APIKey != "" {
			opts = append(opts, remote.WithAPIKey(rec.APIKey))
		}
		return remote.New(rec.RemoteURL, opts...)
	case config.EngineTesseract:
		return newTesseractEngine(rec.Languages)
	}
	return nil, fmt.Errorf("unknown recognition engine: %s", rec.Engine)
}

// buildPipeline validates cfg and builds a pipeline on its engine.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, fmt.Errorf("init recognition engine: %w", err)
	}
	p, err := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithEngine(engine).
		Build()
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}
	return p, nil
}
