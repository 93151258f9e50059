package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/normalize"
	"github.com/MeKo-Tech/idscan/internal/recognition"
	"github.com/MeKo-Tech/idscan/internal/recognition/recognitiontest"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newPipeline(t *testing.T, engine recognition.Engine) *Pipeline {
	t.Helper()
	p, err := NewBuilder().
		WithEngine(engine).
		WithClock(func() time.Time { return fixedNow }).
		WithRecognitionSleep(noSleep).
		Build()
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func cardCapture(t *testing.T) document.RawCapture {
	t.Helper()
	img := testutil.GenerateCapture(testutil.DefaultCaptureConfig())
	return document.NewRawCapture(testutil.EncodePNG(t, img), document.FormatPNG, fixedNow)
}

func replay(fx testutil.Fixture) *recognition.ReplayEngine {
	return recognition.NewReplayEngine(fx.Tokens, fx.Width, fx.Height)
}

// scaled maps fixture tokens onto the 240x150 card cropped from cardCapture.
func scaled(fx testutil.Fixture) []document.TextToken { return fx.ScaledTo(240, 150) }

func TestBuilder_Validate(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine is required")

	_, err = NewBuilder().WithEngine(recognitiontest.New(nil)).WithMinScore(2).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classify")

	b := NewBuilder().
		WithEngine(recognitiontest.New(nil)).
		WithRecognitionTimeout(3 * time.Second).
		WithMaxRetries(4).
		WithDegradedFactor(0.5).
		WithMaxDimension(800)
	cfg := b.Config()
	assert.Equal(t, 3*time.Second, cfg.Recognition.Timeout)
	assert.Equal(t, 4, cfg.Recognition.MaxRetries)
	assert.InDelta(t, 0.5, cfg.Validation.DegradedFactor, 1e-9)
	assert.Equal(t, 800, cfg.Normalize.MaxDimension)
	assert.NoError(t, b.Validate())
}

func TestBuilder_Sources(t *testing.T) {
	reg, err := template.LoadBuiltin()
	require.NoError(t, err)
	p, err := NewBuilder().WithEngine(recognitiontest.New(nil)).WithRegistry(reg).Build()
	require.NoError(t, err)
	assert.Same(t, reg, p.Registry())
	p.Close()

	b := NewBuilder().
		WithEngine(recognitiontest.New(nil)).
		WithTemplatesDir(t.TempDir()).
		WithBackoff(time.Second, 2*time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, b.Config().Recognition.Backoff)
	p, err = b.Build()
	require.NoError(t, err)
	assert.Equal(t, 5, p.Registry().Len())
	p.Close()

	_, err = NewBuilder().WithEngine(recognitiontest.New(nil)).WithBoundaryModel("/nonexistent/uvdoc.onnx").Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundary model not found")
}

func TestProcess_USDriverLicense(t *testing.T) {
	p := newPipeline(t, replay(testutil.USDriverLicense()))

	res, err := p.Process(context.Background(), cardCapture(t))
	require.NoError(t, err)

	assert.Equal(t, "us-driver-license-v1", res.TemplateID)
	assert.Equal(t, document.StatusComplete, res.Status)
	assert.False(t, res.Degraded)
	assert.Empty(t, res.Notes)

	tpl, ok := p.Registry().Get(res.TemplateID)
	require.True(t, ok)
	require.NoError(t, ValidateResult(res, tpl))

	assert.Equal(t, "I1234568", res.Field("idNumber").Value.String())
	assert.Equal(t, "1985-03-15", res.Field("dateOfBirth").Value.String())
	assert.Equal(t, "2028-08-31", res.Field("expirationDate").Value.String())
	assert.False(t, res.StartedAt.IsZero())
	assert.False(t, res.CompletedAt.Before(res.StartedAt))
}

func TestProcess_StageOrder(t *testing.T) {
	p := newPipeline(t, replay(testutil.Passport()))

	var stages []Stage
	_, err := p.ProcessStages(context.Background(), cardCapture(t), func(s Stage) error {
		stages = append(stages, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageNormalizing, StageRecognizing, StageExtracting, StageValidating}, stages)
}

func TestProcess_StageHookAborts(t *testing.T) {
	engine := recognitiontest.New(scaled(testutil.USDriverLicense()))
	p := newPipeline(t, engine)
	stop := errors.New("superseded")

	res, err := p.ProcessStages(context.Background(), cardCapture(t), func(s Stage) error {
		if s == StageRecognizing {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Nil(t, res)
	assert.Zero(t, engine.Calls())
}

func TestProcess_Cancelled(t *testing.T) {
	p := newPipeline(t, recognitiontest.New(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Process(ctx, cardCapture(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestProcess_RetryIsTransparent(t *testing.T) {
	tokens := scaled(testutil.USDriverLicense())

	want, err := newPipeline(t, recognitiontest.New(tokens)).Process(context.Background(), cardCapture(t))
	require.NoError(t, err)

	flaky := recognitiontest.New(tokens).FailTimes(2)
	got, err := newPipeline(t, flaky).Process(context.Background(), cardCapture(t))
	require.NoError(t, err)

	assert.Equal(t, 3, flaky.Calls())
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.TemplateID, got.TemplateID)
	assert.Equal(t, want.Order, got.Order)
	for _, name := range want.Order {
		w, g := want.Field(name), got.Field(name)
		assert.Equal(t, w.RawValue, g.RawValue, name)
		assert.Equal(t, w.Value.String(), g.Value.String(), name)
		assert.Equal(t, w.Flags, g.Flags, name)
	}
	assert.Empty(t, got.Notes)
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name   string
		engine func() recognition.Engine
		data   []byte
		note   string
	}{
		{
			name:   "undecodable bytes",
			engine: func() recognition.Engine { return recognitiontest.New(nil) },
			data:   []byte("not an image at all"),
			note:   document.NoteDecodeFailed,
		},
		{
			name:   "engine unavailable",
			engine: func() recognition.Engine { return recognitiontest.New(nil).FailTimes(10) },
			note:   document.NoteRecognitionFailed,
		},
		{
			name:   "engine rejects image",
			engine: func() recognition.Engine { return recognitiontest.New(nil).FailWith(errors.New("bad image")) },
			note:   document.NoteRecognitionFailed,
		},
		{
			name:   "no tokens",
			engine: func() recognition.Engine { return recognitiontest.New(nil) },
			note:   document.NoteNoTokens,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, tt.engine())
			raw := cardCapture(t)
			if tt.data != nil {
				raw = document.NewRawCapture(tt.data, document.FormatAuto, fixedNow)
			}

			res, err := p.Process(context.Background(), raw)
			require.NoError(t, err)
			assert.Equal(t, document.StatusFailed, res.Status)
			assert.True(t, res.HasNote(tt.note), "notes: %v", res.Notes)

			generic := p.Registry().Generic()
			assert.Equal(t, generic.ID, res.TemplateID)
			require.NoError(t, ValidateResult(res, generic))
			for _, f := range res.Ordered() {
				assert.False(t, f.Found, f.Name)
			}
		})
	}
}

func TestProcess_BoundaryFallbackDegrades(t *testing.T) {
	strip := image.NewGray(image.Rect(0, 0, 600, 100))
	for i := range strip.Pix {
		strip.Pix[i] = 200
	}
	raw := document.NewRawCapture(testutil.EncodePNG(t, strip), document.FormatPNG, fixedNow)
	p := newPipeline(t, replay(testutil.USDriverLicense()))

	res, err := p.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, res.HasNote(document.NoteBoundaryNotFound))
	for _, f := range res.Ordered() {
		assert.True(t, f.HasFlag(document.FlagDegraded), f.Name)
	}
}

type brokenDetector struct{ err error }

func (d brokenDetector) DetectBoundary(context.Context, *image.Gray) (normalize.Boundary, error) {
	return normalize.Boundary{}, d.err
}

func TestProcess_CustomBoundaryDetector(t *testing.T) {
	build := func(err error) *Pipeline {
		p, buildErr := NewBuilder().
			WithEngine(replay(testutil.USDriverLicense())).
			WithClock(func() time.Time { return fixedNow }).
			WithBoundaryDetector(brokenDetector{err: err}).
			Build()
		require.NoError(t, buildErr)
		t.Cleanup(p.Close)
		return p
	}

	res, err := build(errors.New("segmentation service offline")).Process(context.Background(), cardCapture(t))
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, res.Status)
	assert.True(t, res.HasNote(document.NoteDecodeFailed))

	res, err = build(normalize.ErrBoundaryNotFound).Process(context.Background(), cardCapture(t))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, res.HasNote(document.NoteBoundaryNotFound))
}

func TestPipeline_Info(t *testing.T) {
	p := newPipeline(t, replay(testutil.Passport()))
	_, err := p.Process(context.Background(), cardCapture(t))
	require.NoError(t, err)

	info := p.Info()
	assert.Equal(t, "replay", info["engine"])
	assert.Contains(t, info["templates"], "passport-td3-v1")
	assert.Equal(t, false, info["boundary_model"])
	stats, ok := info["stats"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats["scans"])
}
