package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/idscan/internal/classify"
	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/normalize"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/validate"
)

// Stage names one step of a scan.
type Stage string

const (
	StageNormalizing Stage = "Normalizing"
	StageRecognizing Stage = "Recognizing"
	StageExtracting  Stage = "Extracting"
	StageValidating  Stage = "Validating"
)

// StageFunc is called before each stage starts. A non-nil error stops the
// scan and is returned from ProcessStages unchanged.
type StageFunc func(Stage) error

// Process runs every stage on raw. Data problems (undecodable input,
// unreachable engine, unknown layout) are reported inside the result; the
// error is non-nil only when ctx ends.
func (p *Pipeline) Process(ctx context.Context, raw document.RawCapture) (*document.ScanResult, error) {
	return p.ProcessStages(ctx, raw, nil)
}

// ProcessStages is Process with a hook that runs before each stage.
func (p *Pipeline) ProcessStages(ctx context.Context, raw document.RawCapture, onStage StageFunc) (*document.ScanResult, error) {
	enter := func(s Stage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onStage != nil {
			return onStage(s)
		}
		return nil
	}
	started := time.Now()

	if err := enter(StageNormalizing); err != nil {
		return nil, err
	}
	t0 := time.Now()
	img, err := p.normalizer.Normalize(ctx, raw)
	p.observe(StageNormalizing, t0)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var decodeErr *normalize.DecodeError
		if !errors.As(err, &decodeErr) {
			// Boundary detectors may fail for their own reasons; the capture
			// itself is still unusable.
			err = &normalize.DecodeError{Format: raw.Format, Err: err}
		}
		return p.failed(started, document.NoteDecodeFailed, err), nil
	}

	if err := enter(StageRecognizing); err != nil {
		return nil, err
	}
	t0 = time.Now()
	tokens, err := p.recognizer.Recognize(ctx, img)
	p.observe(StageRecognizing, t0)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		res := p.failed(started, document.NoteRecognitionFailed, err)
		noteFallback(res, img)
		return res, nil
	}

	if err := enter(StageExtracting); err != nil {
		return nil, err
	}
	t0 = time.Now()
	match, classifyErr := p.classifier.Classify(tokens, img.Width(), img.Height())
	fields := p.extractor.Extract(tokens, img.Width(), img.Height(), match.Template)
	p.observe(StageExtracting, t0)
	templateMatches.WithLabelValues(match.Template.ID).Inc()

	if err := enter(StageValidating); err != nil {
		return nil, err
	}
	t0 = time.Now()
	res := document.NewScanResult(match.Template.ID, fields)
	res.TokenCount = len(tokens)
	noteFallback(res, img)
	var notRecognized *classify.TemplateNotRecognizedError
	if errors.As(classifyErr, &notRecognized) {
		res.Degraded = true
		res.AddNote(document.NoteTemplateNotRecognized, notRecognized.Error())
	}
	if validate.UsableTokens(tokens) == 0 {
		res.AddNote(document.NoteNoTokens, "recognition returned no usable text")
	}
	res.Status = p.validator.Validate(validate.Input{
		Template: match.Template,
		Fields:   fields,
		Tokens:   tokens,
		Degraded: res.Degraded,
	})
	p.observe(StageValidating, t0)

	p.finish(res, started)
	slog.Debug("Scan finished", "template", res.TemplateID, "status", res.Status,
		"tokens", len(tokens), "score", match.Score, "degraded", res.Degraded)
	return res, nil
}

// noteFallback records a full-frame fallback of the normalizer.
func noteFallback(res *document.ScanResult, img document.NormalizedImage) {
	if img.Degraded() {
		res.Degraded = true
		res.AddNote(document.NoteBoundaryNotFound, img.Fallback.Error())
	}
}

// failed builds a Failed result on the generic template: every field is
// present and NotFound.
func (p *Pipeline) failed(started time.Time, code string, err error) *document.ScanResult {
	res := FailedResult(p.registry.Generic(), code, err)
	p.finish(res, started)
	slog.Warn("Scan failed", "reason", code, "error", err)
	return res
}

// FailedResult returns a Failed result holding every field of t as NotFound.
func FailedResult(t *template.Template, code string, err error) *document.ScanResult {
	fields := make([]*document.ExtractedField, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		fields[i] = &document.ExtractedField{
			Name:     f.Name,
			Group:    f.Group,
			Required: f.Required,
			Type:     f.Type,
			Rule:     f.Rule.Kind,
			Failure:  document.FailureNotFound,
		}
	}
	res := document.NewScanResult(t.ID, fields)
	res.Status = document.StatusFailed
	if err != nil {
		res.Error = err.Error()
		res.AddNote(code, err.Error())
	} else {
		res.AddNote(code, code)
	}
	return res
}

func (p *Pipeline) finish(res *document.ScanResult, started time.Time) {
	res.StartedAt = started
	res.CompletedAt = time.Now()
	elapsed := res.CompletedAt.Sub(started)
	scansTotal.WithLabelValues(string(res.Status)).Inc()
	scanDuration.Observe(elapsed.Seconds())
	p.profiler.Record(elapsed, res.Status)
}

func (p *Pipeline) observe(s Stage, since time.Time) {
	d := time.Since(since)
	stageDuration.WithLabelValues(string(s)).Observe(d.Seconds())
	p.profiler.RecordStage(s, d)
}
