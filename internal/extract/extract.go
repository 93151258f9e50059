// Package extract maps recognized tokens to the fields of a document
// template using label, pattern and positional rules.
package extract

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
)

// Config holds extraction heuristics.
type Config struct {
	GapFactor     float64 // max word gap, relative to token height, inside one value
	BelowPenalty  float64 // distance multiplier for values below a label when either side is allowed
	DistanceDecay float64 // confidence lost by a label value at the distance limit (0-1)
}

// DefaultConfig returns the default extraction heuristics.
func DefaultConfig() Config {
	return Config{GapFactor: 2, BelowPenalty: 1.25, DistanceDecay: 0.25}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.GapFactor <= 0 {
		return fmt.Errorf("gap factor must be positive, got %.2f", c.GapFactor)
	}
	if c.BelowPenalty < 1 {
		return fmt.Errorf("below penalty must be at least 1, got %.2f", c.BelowPenalty)
	}
	if c.DistanceDecay < 0 || c.DistanceDecay >= 1 {
		return fmt.Errorf("distance decay must be in [0,1), got %.2f", c.DistanceDecay)
	}
	return nil
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct {
	cfg Config
}

// New creates an extractor.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction config: %w", err)
	}
	return &Extractor{cfg: cfg}, nil
}

// Extract returns one field per template field, in template order. Fields
// are resolved by rule priority (label, pattern, positional) and then
// template order; a token range claimed by one field is not available to
// later ones, which fall back to their next candidate.
func (e *Extractor) Extract(tokens []document.TextToken, width, height int, t *template.Template) []*document.ExtractedField {
	p := newPage(tokens, width, height)

	hits := make(map[int][]labelHit)
	for i := range t.Fields {
		if r := &t.Fields[i].Rule; r.Kind == document.RuleLabel {
			hits[i] = findLabels(p, r)
		}
	}

	order := make([]int, len(t.Fields))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.Fields[order[a]].Rule.Kind.Priority() < t.Fields[order[b]].Rule.Kind.Priority()
	})

	out := make([]*document.ExtractedField, len(t.Fields))
	for _, i := range order {
		f := &t.Fields[i]
		out[i] = e.resolve(f, e.candidates(p, f, hits[i]))
	}

	found := 0
	for _, f := range out {
		if f.Found {
			found++
		}
	}
	slog.Debug("Fields extracted", "template", t.ID, "fields", len(out), "found", found, "tokens", len(tokens))
	return out
}

func (e *Extractor) candidates(p *page, f *template.Field, hits []labelHit) []candidate {
	switch f.Rule.Kind {
	case document.RuleLabel:
		return e.labelCandidates(p, &f.Rule, hits)
	case document.RulePattern:
		return e.patternCandidates(p, &f.Rule)
	case document.RulePositional:
		return e.positionalCandidates(p, &f.Rule)
	}
	return nil
}

// resolve takes the first candidate whose token ranges are unclaimed.
func (e *Extractor) resolve(f *template.Field, cands []candidate) *document.ExtractedField {
	field := &document.ExtractedField{
		Name:     f.Name,
		Group:    f.Group,
		Required: f.Required,
		Type:     f.Type,
		Rule:     f.Rule.Kind,
	}
	for _, c := range cands {
		if len(c.parts) == 0 || !available(c.parts) {
			continue
		}
		conf := c.conf
		for _, pt := range c.parts {
			pt.it.spans = append(pt.it.spans, pt.span)
			conf = math.Min(conf, pt.it.tok.Confidence)
		}
		field.Found = true
		field.RawValue = c.raw
		field.Confidence = math.Max(0, conf)
		field.Provenance = provenance(c.parts)
		return field
	}
	field.Failure = document.FailureNotFound
	return field
}

func available(parts []part) bool {
	for _, pt := range parts {
		if !pt.it.free(pt.span) {
			return false
		}
	}
	return true
}
