package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
	"github.com/MeKo-Tech/idscan/internal/recognition/recognitiontest"
	"github.com/MeKo-Tech/idscan/internal/template"
	"github.com/MeKo-Tech/idscan/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func licenseEngine() *recognitiontest.Engine {
	return recognitiontest.New(testutil.USDriverLicense().ScaledTo(240, 150))
}

func newTestPipeline(t *testing.T, engine *recognitiontest.Engine) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.NewBuilder().
		WithEngine(engine).
		WithClock(func() time.Time { return fixedNow }).
		WithRecognitionSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }).
		Build()
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func newTestServer(t *testing.T, cfg Config, engine *recognitiontest.Engine) *Server {
	t.Helper()
	if cfg.MaxUploadMB == 0 {
		cfg.MaxUploadMB = 5
	}
	s, err := NewServer(cfg, newTestPipeline(t, engine))
	require.NoError(t, err)
	return s
}

func capturePNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.GenerateCapture(testutil.DefaultCaptureConfig()))
}

// scanRequest builds a multipart POST /scan request.
func scanRequest(t *testing.T, query string, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/scan"+query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// blockingProcessor waits for ctx before giving up.
type blockingProcessor struct {
	registry *template.Registry
}

func (b blockingProcessor) ProcessStages(ctx context.Context, _ document.RawCapture, _ pipeline.StageFunc) (*document.ScanResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b blockingProcessor) Registry() *template.Registry { return b.registry }
