package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/idscan/internal/server"
)

// RegisterServerSteps registers the HTTP API steps.
func (tc *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the scan server is running with a "([^"]*)" recognizer$`, tc.theScanServerIsRunning)
	sc.Step(`^the scan server is running with a "([^"]*)" recognizer and (\d+) requests? per minute$`, tc.theRateLimitedScanServerIsRunning)
	sc.Step(`^I GET "([^"]*)"$`, tc.iGET)
	sc.Step(`^I upload a capture to "([^"]*)"$`, tc.iUploadACaptureTo)
	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, tc.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, tc.theResponseHeaderShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, tc.theJSONFieldShouldBe)
}

func (tc *TestContext) theScanServerIsRunning(fixture string) error {
	return tc.startServer(fixture, server.Config{})
}

func (tc *TestContext) theRateLimitedScanServerIsRunning(fixture string, perMinute int) error {
	return tc.startServer(fixture, server.Config{RateLimitEnabled: true, RequestsPerMinute: perMinute})
}

func (tc *TestContext) startServer(fixture string, cfg server.Config) error {
	if err := tc.useFixture(fixture); err != nil {
		return err
	}
	cfg.MaxUploadMB = 5
	cfg.TimeoutSec = 10
	cfg.Version = "test"
	srv, err := server.NewServer(cfg, tc.Pipeline)
	if err != nil {
		return err
	}
	tc.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

func (tc *TestContext) iGET(path string) error {
	resp, err := http.Get(tc.HTTPServer.URL + path)
	if err != nil {
		return err
	}
	return tc.record(resp)
}

func (tc *TestContext) iUploadACaptureTo(path string) error {
	data, err := capturePNG()
	if err != nil {
		return err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "front.png")
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	resp, err := http.Post(tc.HTTPServer.URL+path, mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	return tc.record(resp)
}

func (tc *TestContext) record(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.LastHTTPStatusCode = resp.StatusCode
	tc.LastHTTPResponse = string(b)
	tc.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		tc.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (tc *TestContext) theResponseStatusShouldBe(code int) error {
	if tc.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, tc.LastHTTPStatusCode, tc.LastHTTPResponse)
	}
	return nil
}

func (tc *TestContext) theResponseShouldContain(s string) error {
	if !strings.Contains(tc.LastHTTPResponse, s) {
		return fmt.Errorf("response does not contain %q: %s", s, tc.LastHTTPResponse)
	}
	return nil
}

func (tc *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := tc.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("header %s: expected %q, got %q", name, value, got)
	}
	return nil
}

// theJSONFieldShouldBe resolves a dotted path such as result.template_id.
func (tc *TestContext) theJSONFieldShouldBe(path, want string) error {
	var v any
	if err := json.Unmarshal([]byte(tc.LastHTTPResponse), &v); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	for _, key := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: %q is not an object", path, key)
		}
		if v, ok = m[key]; !ok {
			return fmt.Errorf("%s: key %q missing", path, key)
		}
	}
	if got := fmt.Sprint(v); got != want {
		return fmt.Errorf("%s: expected %q, got %q", path, want, got)
	}
	return nil
}
