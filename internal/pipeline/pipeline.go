package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/idscan/internal/classify"
	"github.com/MeKo-Tech/idscan/internal/extract"
	"github.com/MeKo-Tech/idscan/internal/normalize"
	"github.com/MeKo-Tech/idscan/internal/recognition"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/validate"
)

// Config holds configuration for the scan pipeline and its stages.
type Config struct {
	Normalize   normalize.Config
	Recognition recognition.Config
	Classify    classify.Config
	Extract     extract.Config
	Validation  validate.Config

	TemplatesDir   string // extra template definitions, empty for built-ins only
	IncludeBuiltin bool   // load the embedded templates
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Normalize:      normalize.DefaultConfig(),
		Recognition:    recognition.DefaultConfig(),
		Classify:       classify.DefaultConfig(),
		Extract:        extract.DefaultConfig(),
		Validation:     validate.DefaultConfig(),
		IncludeBuiltin: true,
	}
}

// Validate checks the configuration of every stage.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"normalize", c.Normalize.Validate},
		{"recognition", c.Recognition.Validate},
		{"classify", c.Classify.Validate},
		{"extract", c.Extract.Validate},
		{"validate", c.Validation.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}
	return nil
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	engine   recognition.Engine
	registry *template.Registry
	detector normalize.BoundaryDetector
	clock    func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithEngine sets the recognition engine. It is required.
func (b *Builder) WithEngine(e recognition.Engine) *Builder {
	b.engine = e
	return b
}

// WithRegistry uses an already loaded template registry instead of loading one.
func (b *Builder) WithRegistry(r *template.Registry) *Builder {
	b.registry = r
	return b
}

// WithTemplatesDir adds templates from dir on top of the built-ins.
func (b *Builder) WithTemplatesDir(dir string) *Builder {
	b.cfg.TemplatesDir = dir
	return b
}

// WithBoundaryDetector overrides boundary detection, e.g. with a remote model.
func (b *Builder) WithBoundaryDetector(d normalize.BoundaryDetector) *Builder {
	b.detector = d
	return b
}

// WithClock sets the clock used for date validation.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithRecognitionSleep replaces the retry backoff wait, for tests.
func (b *Builder) WithRecognitionSleep(fn func(ctx context.Context, d time.Duration) error) *Builder {
	b.sleep = fn
	return b
}

// WithRecognitionTimeout sets the per-attempt recognition timeout.
func (b *Builder) WithRecognitionTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.Recognition.Timeout = d
	}
	return b
}

// WithMaxRetries sets the number of recognition retries.
func (b *Builder) WithMaxRetries(n int) *Builder {
	if n >= 0 {
		b.cfg.Recognition.MaxRetries = n
	}
	return b
}

// WithBackoff sets the recognition retry backoff schedule.
func (b *Builder) WithBackoff(schedule ...time.Duration) *Builder {
	b.cfg.Recognition.Backoff = schedule
	return b
}

// WithMinScore sets the default classification threshold.
func (b *Builder) WithMinScore(score float64) *Builder {
	if score > 0 {
		b.cfg.Classify.MinScore = score
	}
	return b
}

// WithDegradedFactor sets the confidence factor for degraded captures.
func (b *Builder) WithDegradedFactor(f float64) *Builder {
	if f > 0 {
		b.cfg.Validation.DegradedFactor = f
	}
	return b
}

// WithMaxDimension caps the normalized image size.
func (b *Builder) WithMaxDimension(px int) *Builder {
	if px >= 0 {
		b.cfg.Normalize.MaxDimension = px
	}
	return b
}

// WithBoundaryModel enables the ONNX boundary model at path.
func (b *Builder) WithBoundaryModel(path string) *Builder {
	if path != "" {
		b.cfg.Normalize.Model.Enabled = true
		b.cfg.Normalize.Model.ModelPath = path
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration of every stage.
func (b *Builder) Validate() error {
	if b.engine == nil {
		return errors.New("recognition engine is required")
	}
	return b.cfg.Validate()
}

// Pipeline wires the stages together. It holds no per-scan state and is
// safe for concurrent use.
type Pipeline struct {
	cfg        Config
	registry   *template.Registry
	normalizer *normalize.Normalizer
	recognizer *recognition.Adapter
	classifier *classify.Classifier
	extractor  *extract.Extractor
	validator  *validate.Validator
	profiler   *Profiler
}

// Build initializes the pipeline stages.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	reg := b.registry
	if reg == nil {
		var err error
		reg, err = template.Load(b.cfg.TemplatesDir, b.cfg.IncludeBuiltin)
		if err != nil {
			return nil, fmt.Errorf("load templates: %w", err)
		}
	}

	p := &Pipeline{cfg: b.cfg, registry: reg, profiler: &Profiler{}}

	if b.detector != nil {
		p.normalizer = normalize.NewWithDetector(b.cfg.Normalize, b.detector)
	} else {
		n, err := normalize.New(b.cfg.Normalize)
		if err != nil {
			return nil, fmt.Errorf("init normalizer: %w", err)
		}
		p.normalizer = n
	}

	rec, err := recognition.NewAdapter(b.engine, b.cfg.Recognition)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init recognition: %w", err)
	}
	if b.sleep != nil {
		rec.WithSleep(b.sleep)
	}
	p.recognizer = rec

	if p.classifier, err = classify.New(reg, b.cfg.Classify); err != nil {
		p.Close()
		return nil, fmt.Errorf("init classifier: %w", err)
	}
	if p.extractor, err = extract.New(b.cfg.Extract); err != nil {
		p.Close()
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	var opts []validate.Option
	if b.clock != nil {
		opts = append(opts, validate.WithClock(b.clock))
	}
	if p.validator, err = validate.New(b.cfg.Validation, opts...); err != nil {
		p.Close()
		return nil, fmt.Errorf("init validator: %w", err)
	}
	return p, nil
}

// Close releases model resources.
func (p *Pipeline) Close() {
	if p.normalizer != nil {
		p.normalizer.Close()
	}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Registry returns the template set in use.
func (p *Pipeline) Registry() *template.Registry { return p.registry }

// Info returns key pipeline properties for diagnostics.
func (p *Pipeline) Info() map[string]any {
	ids := make([]string, 0, p.registry.Len())
	for _, t := range p.registry.All() {
		ids = append(ids, t.ID)
	}
	return map[string]any{
		"engine":    p.recognizer.Engine(),
		"templates": ids,
		"recognition": map[string]any{
			"timeout":          p.cfg.Recognition.Timeout.String(),
			"max_retries":      p.cfg.Recognition.MaxRetries,
			"confidence_floor": p.cfg.Recognition.ConfidenceFloor,
		},
		"boundary_model": p.cfg.Normalize.Model.Enabled,
		"stats":          p.profiler.Snapshot(),
	}
}
