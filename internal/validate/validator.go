// Package validate turns raw field strings into typed values, checks the
// dates of a document against each other and decides the scan status.
package validate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
)

// Input is one extraction outcome to validate.
type Input struct {
	Template *template.Template
	Fields   []*document.ExtractedField
	Tokens   []document.TextToken
	// Degraded is set when the capture used the full-frame or generic
	// template fallback.
	Degraded bool
}

// Validator is safe for concurrent use.
type Validator struct {
	cfg Config
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock sets the clock used for "today" in date checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New creates a validator.
func New(cfg Config, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validation config: %w", err)
	}
	v := &Validator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate normalizes every found field in place, applies the confidence
// policy and the cross-field date checks, and returns the aggregate status.
// Fields are annotated, never removed.
func (v *Validator) Validate(in Input) document.Status {
	today := dateOnly(v.now())
	for _, f := range in.Fields {
		desc := in.Template.Field(f.Name)
		if desc == nil {
			continue
		}
		if f.Found {
			v.normalize(in.Template, desc, f, today)
		}
		if in.Degraded {
			f.Confidence *= v.cfg.DegradedFactor
			f.AddFlag(document.FlagDegraded)
		}
		if f.Found && f.Confidence < v.cfg.LowConfidence {
			f.AddFlag(document.FlagLowConfidence)
		}
	}
	crossCheck(in.Fields, today)

	status := Status(in.Fields, UsableTokens(in.Tokens))
	for _, f := range in.Fields {
		recordOutcome(outcomeOf(f))
	}
	slog.Debug("Fields validated", "template", in.Template.ID, "status", status, "degraded", in.Degraded)
	return status
}

// normalize converts f.RawValue to the declared type. On failure the raw
// value stays and the field is marked InvalidFormat.
func (v *Validator) normalize(t *template.Template, desc *template.Field, f *document.ExtractedField, today time.Time) {
	raw := strings.TrimSpace(f.RawValue)
	val := &document.Value{Type: desc.Type}
	var err error

	switch desc.Type {
	case document.TypeDate:
		var d time.Time
		d, err = parseDate(t, desc, raw, today)
		val.Date = d
		val.Text = d.Format(time.DateOnly)
	case document.TypeName:
		var n *document.PersonName
		n, err = splitName(raw, t.ConventionFor(desc))
		val.Name = n
		if n != nil {
			val.Text = n.Full
		}
	case document.TypeEnum:
		code, ok := matchEnum(desc.Vocabulary, raw)
		if !ok {
			f.Value = nil
			f.AddFlag(document.FlagUnrecognizedEnum)
			return
		}
		val.Text = code
	case document.TypeNumber:
		var n float64
		n, val.Unit, err = parseQuantity(raw, desc.Unit)
		val.Number = n
		val.Text = formatNumber(n)
	default:
		val.Text = trimValue(raw, desc.Trim)
		if val.Text == "" {
			err = fmt.Errorf("%q is empty after trimming", raw)
		}
	}

	if err != nil {
		slog.Debug("Field normalization failed", "field", f.Name, "raw", f.RawValue, "error", err)
		f.Value = nil
		f.Failure = document.FailureInvalidFormat
		return
	}
	f.Value = val
}

func matchEnum(vocab []template.EnumValue, raw string) (string, bool) {
	folded := template.Fold(strings.Join(strings.Fields(raw), " "))
	for _, e := range vocab {
		if template.Fold(e.Code) == folded {
			return e.Code, true
		}
		for _, alias := range e.Aliases {
			if template.Fold(alias) == folded {
				return e.Code, true
			}
		}
	}
	return "", false
}

func trimValue(raw, cutset string) string {
	if cutset != "" {
		raw = strings.Trim(raw, cutset)
	}
	return strings.TrimSpace(raw)
}

// crossCheck marks dates that contradict today or each other.
func crossCheck(fields []*document.ExtractedField, today time.Time) {
	date := func(name string) (*document.ExtractedField, time.Time, bool) {
		for _, f := range fields {
			if f.Name == name && f.Found && f.Value != nil && f.Value.Type == document.TypeDate {
				return f, f.Value.Date, true
			}
		}
		return nil, time.Time{}, false
	}
	issue, issued, hasIssue := date(template.FieldIssueDate)
	exp, expires, hasExp := date(template.FieldExpirationDate)
	dob, born, hasDOB := date(template.FieldDateOfBirth)

	if hasIssue && issued.After(today) {
		issue.AddFlag(document.FlagInconsistent)
	}
	if hasExp && (expires.Before(today) || (hasIssue && expires.Before(issued))) {
		exp.AddFlag(document.FlagInconsistent)
	}
	if hasDOB && (born.After(today) || (hasIssue && !born.Before(issued))) {
		dob.AddFlag(document.FlagInconsistent)
	}
}

// UsableTokens counts tokens with text that cleared the recognition
// confidence floor.
func UsableTokens(tokens []document.TextToken) int {
	n := 0
	for _, t := range tokens {
		if !t.LowConfidence && strings.TrimSpace(t.Text) != "" {
			n++
		}
	}
	return n
}

// Status aggregates field outcomes. A scan without usable tokens fails;
// it is complete when every required field is usable.
func Status(fields []*document.ExtractedField, usableTokens int) document.Status {
	if usableTokens == 0 {
		return document.StatusFailed
	}
	for _, f := range fields {
		if f.Required && !f.Usable() {
			return document.StatusPartial
		}
	}
	return document.StatusComplete
}

func outcomeOf(f *document.ExtractedField) fieldOutcome {
	switch {
	case !f.Found:
		return outcomeNotFound
	case f.Failure == document.FailureInvalidFormat:
		return outcomeInvalid
	case f.HasFlag(document.FlagUnrecognizedEnum):
		return outcomeUnrecognized
	case f.HasFlag(document.FlagInconsistent):
		return outcomeInconsistent
	}
	return outcomeOK
}
