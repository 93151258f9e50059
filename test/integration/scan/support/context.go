// Package support holds the step definitions of the scan integration suite.
package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
	"github.com/MeKo-Tech/idscan/internal/recognition/recognitiontest"
	"github.com/MeKo-Tech/idscan/internal/session"
	"github.com/MeKo-Tech/idscan/internal/testutil"
)

const waitFor = 5 * time.Second

// Dates on the fixtures are judged against this day.
var today = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

// Captures normalize to this canonical size.
const canonicalWidth, canonicalHeight = 240, 150

var fixtures = map[string]func() testutil.Fixture{
	"us-driver-license": testutil.USDriverLicense,
	"passport":          testutil.Passport,
	"de-id-card":        testutil.GermanIDCard,
}

// TestContext holds the state of one scenario.
type TestContext struct {
	Engine   *recognitiontest.Engine
	Pipeline *pipeline.Pipeline
	Scanner  *session.Scanner

	mu          sync.Mutex
	handles     []session.Handle
	results     []*document.ScanResult
	transitions []session.Transition

	HTTPServer         *httptest.Server
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates an empty scenario context.
func NewTestContext() *TestContext {
	return &TestContext{}
}

// useFixture builds a pipeline whose engine recognizes the named fixture.
func (tc *TestContext) useFixture(name string) error {
	fx, ok := fixtures[name]
	if !ok {
		return fmt.Errorf("unknown document fixture %q", name)
	}
	if err := tc.Cleanup(); err != nil {
		return err
	}
	tc.Engine = recognitiontest.New(fx().ScaledTo(canonicalWidth, canonicalHeight))
	p, err := pipeline.NewBuilder().
		WithEngine(tc.Engine).
		WithClock(func() time.Time { return today }).
		WithRecognitionSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }).
		Build()
	if err != nil {
		return err
	}
	tc.Pipeline = p
	return nil
}

// scanner lazily starts a scanner recording every event.
func (tc *TestContext) scanner() *session.Scanner {
	if tc.Scanner == nil {
		tc.Scanner = session.New(tc.Pipeline,
			session.WithResultHandler(func(res *document.ScanResult) {
				tc.mu.Lock()
				defer tc.mu.Unlock()
				tc.results = append(tc.results, res)
			}),
			session.WithTransitionHandler(func(tr session.Transition) {
				tc.mu.Lock()
				defer tc.mu.Unlock()
				tc.transitions = append(tc.transitions, tr)
			}),
		)
	}
	return tc.Scanner
}

func (tc *TestContext) snapshot() ([]*document.ScanResult, []session.Transition) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]*document.ScanResult(nil), tc.results...), append([]session.Transition(nil), tc.transitions...)
}

func (tc *TestContext) eventually(cond func() bool, what string) error {
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errors.New("timed out waiting for " + what)
}

// capturePNG is a synthetic card photo on a darker background.
func capturePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testutil.GenerateCapture(testutil.DefaultCaptureConfig())); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Cleanup releases everything the scenario started.
func (tc *TestContext) Cleanup() error {
	if tc.Engine != nil {
		tc.Engine.Release()
	}
	if tc.Scanner != nil {
		tc.Scanner.Close()
		tc.Scanner = nil
	}
	if tc.HTTPServer != nil {
		tc.HTTPServer.Close()
		tc.HTTPServer = nil
	}
	if tc.Pipeline != nil {
		tc.Pipeline.Close()
		tc.Pipeline = nil
	}
	tc.mu.Lock()
	tc.handles, tc.results, tc.transitions = nil, nil, nil
	tc.mu.Unlock()
	return nil
}
