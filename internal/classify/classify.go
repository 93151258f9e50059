// Package classify selects the document template whose anchors best match a
// recognized token layout.
package classify

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/layout"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/utils"
)

// Config holds classifier thresholds.
type Config struct {
	MinScore     float64 // default acceptance threshold for templates without min_score
	RegionCredit float64 // share of an anchor's weight earned outside its region
}

// DefaultConfig returns the default classifier thresholds.
func DefaultConfig() Config {
	return Config{MinScore: 0.5, RegionCredit: 0.5}
}

// Validate checks the configuration for inconsistent values.
func (c Config) Validate() error {
	if c.MinScore <= 0 || c.MinScore > 1 {
		return fmt.Errorf("min score must be in (0,1], got %.2f", c.MinScore)
	}
	if c.RegionCredit < 0 || c.RegionCredit > 1 {
		return fmt.Errorf("region credit must be in [0,1], got %.2f", c.RegionCredit)
	}
	return nil
}

// Match is a scored template.
type Match struct {
	Template        *template.Template
	Score           float64
	RequiredMatches int
	Fallback        bool
}

// TemplateNotRecognizedError reports that no template cleared its threshold.
// The classifier returns it together with the generic fallback match.
type TemplateNotRecognizedError struct {
	BestID    string
	BestScore float64
}

func (e *TemplateNotRecognizedError) Error() string {
	if e.BestID == "" {
		return "no document template recognized"
	}
	return fmt.Sprintf("no document template recognized (best %s at %.2f)", e.BestID, e.BestScore)
}

// Classifier scores templates of a registry. It is read-only and safe for
// concurrent use.
type Classifier struct {
	registry *template.Registry
	cfg      Config
}

// New creates a classifier over registry.
func New(registry *template.Registry, cfg Config) (*Classifier, error) {
	if registry == nil {
		return nil, errors.New("template registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}
	return &Classifier{registry: registry, cfg: cfg}, nil
}

// Classify selects the best template for tokens recognized on a width x
// height image. When no template clears its threshold the generic template
// is returned with Fallback set, together with a *TemplateNotRecognizedError.
func (c *Classifier) Classify(tokens []document.TextToken, width, height int) (Match, error) {
	ranked := c.Rank(tokens, width, height)
	for _, m := range ranked {
		if m.Score > 0 && m.Score+1e-9 >= c.threshold(m.Template) {
			slog.Debug("Template recognized", "template", m.Template.ID,
				"score", m.Score, "required_matches", m.RequiredMatches)
			return m, nil
		}
	}

	nre := &TemplateNotRecognizedError{}
	if len(ranked) > 0 {
		nre.BestID, nre.BestScore = ranked[0].Template.ID, ranked[0].Score
	}
	generic := c.registry.Generic()
	slog.Debug("No template recognized, using generic", "best", nre.BestID, "score", nre.BestScore)
	return Match{
		Template:        generic,
		RequiredMatches: requiredMatches(generic, layout.Lines(tokens)),
		Fallback:        true,
	}, nre
}

// Rank scores every non-generic template, best first.
func (c *Classifier) Rank(tokens []document.TextToken, width, height int) []Match {
	lines := layout.Lines(tokens)
	templates := c.registry.Templates()
	out := make([]Match, 0, len(templates))
	for _, t := range templates {
		out = append(out, Match{
			Template:        t,
			Score:           c.score(t, lines, float64(width), float64(height)),
			RequiredMatches: requiredMatches(t, lines),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// better orders by score, then required-field matches, then the more recent
// template version, then template ID.
func better(a, b Match) bool {
	if math.Abs(a.Score-b.Score) > 1e-9 {
		return a.Score > b.Score
	}
	if a.RequiredMatches != b.RequiredMatches {
		return a.RequiredMatches > b.RequiredMatches
	}
	if a.Template.Version != b.Template.Version {
		return a.Template.Version > b.Template.Version
	}
	return a.Template.ID > b.Template.ID
}

func (c *Classifier) threshold(t *template.Template) float64 {
	if t.MinScore > 0 {
		return t.MinScore
	}
	return c.cfg.MinScore
}

// score is the earned anchor weight over the total anchor weight.
func (c *Classifier) score(t *template.Template, lines []layout.Line, w, h float64) float64 {
	var total, earned float64
	for i := range t.Anchors {
		a := &t.Anchors[i]
		total += a.Weight
		earned += a.Weight * c.anchorCredit(a, lines, w, h)
	}
	if total == 0 {
		return 0
	}
	return earned / total
}

// anchorCredit is 1 for a match inside the anchor's region (or anywhere when
// it has none), RegionCredit for a match elsewhere, 0 without a match.
func (c *Classifier) anchorCredit(a *template.Anchor, lines []layout.Line, w, h float64) float64 {
	re := a.Regexp()
	var region *utils.Box
	if a.Region != nil && w > 0 && h > 0 {
		b := a.Region.Box(w, h)
		region = &b
	}

	best := 0.0
	credit := func(box utils.Box) {
		if region == nil || region.Contains(box.Center()) {
			best = 1
			return
		}
		best = math.Max(best, c.cfg.RegionCredit)
	}
	for _, l := range lines {
		for _, tok := range l.Tokens {
			if re.MatchString(tok.Text) {
				credit(tok.Bounds())
			}
		}
		if len(l.Tokens) > 1 && best < 1 && re.MatchString(l.Text()) {
			credit(l.Box)
		}
		if best == 1 {
			break
		}
	}
	return best
}

// requiredMatches counts required fields whose label or pattern occurs.
func requiredMatches(t *template.Template, lines []layout.Line) int {
	n := 0
	for _, f := range t.Required() {
		if ruleEvidence(&f.Rule, lines) {
			n++
		}
	}
	return n
}

func ruleEvidence(r *template.Rule, lines []layout.Line) bool {
	if r.Kind == document.RuleLabel {
		for _, l := range lines {
			for _, phrase := range r.LabelPhrases() {
				if len(layout.FindPhrase(l, phrase)) > 0 {
					return true
				}
			}
		}
		return false
	}
	re := r.Regexp()
	if re == nil {
		return false
	}
	for _, l := range lines {
		if re.MatchString(l.Text()) {
			return true
		}
		for _, tok := range l.Tokens {
			if re.MatchString(tok.Text) {
				return true
			}
		}
	}
	return false
}
