package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/template"
)

func TestNewServer_RequiresProcessor(t *testing.T) {
	_, err := NewServer(Config{}, nil)
	require.Error(t, err)
}

func TestNewServer_Defaults(t *testing.T) {
	s := newTestServer(t, Config{RateLimitEnabled: true, RequestsPerMinute: 5}, licenseEngine())
	assert.Equal(t, "*", s.corsOrigin)
	require.NotNil(t, s.rateLimiter)
	assert.Equal(t, 5, s.rateLimiter.requestsPerMinute)

	s = newTestServer(t, Config{CORSOrigin: "https://scan.example"}, licenseEngine())
	assert.Equal(t, "https://scan.example", s.corsOrigin)
	assert.Nil(t, s.rateLimiter)
}

func TestServer_HealthHandler(t *testing.T) {
	s := newTestServer(t, Config{Version: "1.2.3"}, licenseEngine())

	tests := []struct {
		name   string
		method string
		status int
	}{
		{"GET", http.MethodGet, http.StatusOK},
		{"POST", http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.healthHandler(w, httptest.NewRequest(tt.method, "/health", nil))
			assert.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "healthy", resp.Status)
			assert.Equal(t, "1.2.3", resp.Version)
			assert.Equal(t, 5, resp.Templates)
			assert.NotEmpty(t, resp.Time)
		})
	}
}

func TestServer_TemplatesHandler(t *testing.T) {
	s := newTestServer(t, Config{}, licenseEngine())
	w := httptest.NewRecorder()
	s.templatesHandler(w, httptest.NewRequest(http.MethodGet, "/templates", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp TemplatesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Count)
	ids := make([]string, len(resp.Templates))
	for i, ti := range resp.Templates {
		ids[i] = ti.ID
	}
	assert.Equal(t, []string{"de-id-card-v1", "generic-v1", "passport-td3-v1", "us-driver-license-v1", "us-driver-license-v2"}, ids)
	assert.True(t, resp.Templates[1].Generic)
	assert.Equal(t, "US", resp.Templates[3].Country)
	assert.Positive(t, resp.Templates[3].Fields)
}

func TestServer_ScanHandler_JSON(t *testing.T) {
	s := newTestServer(t, Config{}, licenseEngine())
	w := httptest.NewRecorder()
	s.scanHandler(w, scanRequest(t, "", "image", "front.png", capturePNG(t)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, document.StatusComplete, resp.Result.Status)
	assert.Equal(t, "us-driver-license-v1", resp.Result.TemplateID)
	require.Contains(t, resp.Result.Fields, "idNumber")
	assert.Equal(t, "I1234568", resp.Result.Fields["idNumber"].Value.Text)
}

func TestServer_ScanHandler_OutputFormats(t *testing.T) {
	s := newTestServer(t, Config{}, licenseEngine())

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"text", "text/plain; charset=utf-8", "Template: us-driver-license-v1"},
		{"csv", "text/csv; charset=utf-8", "field,group,required,found"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.scanHandler(w, scanRequest(t, "?format="+tt.format, "image", "front.png", capturePNG(t)))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestServer_ScanHandler_FailedScanIsNotAnHTTPError(t *testing.T) {
	s := newTestServer(t, Config{}, licenseEngine())
	w := httptest.NewRecorder()
	s.scanHandler(w, scanRequest(t, "", "image", "front.png", []byte("not an image at all")))
	require.Equal(t, http.StatusOK, w.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Result)
	assert.Equal(t, document.StatusFailed, resp.Result.Status)
	assert.Equal(t, "generic-v1", resp.Result.TemplateID)
	assert.NotEmpty(t, resp.Error)
}

func TestServer_ScanHandler_BadRequests(t *testing.T) {
	s := newTestServer(t, Config{MaxUploadMB: 1}, licenseEngine())

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name:   "wrong method",
			req:    func(*testing.T) *http.Request { return httptest.NewRequest(http.MethodGet, "/scan", nil) },
			status: http.StatusMethodNotAllowed,
		},
		{
			name: "not multipart",
			req: func(*testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/scan", strings.NewReader("x"))
			},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing image field",
			req:    func(t *testing.T) *http.Request { return scanRequest(t, "", "file", "a.png", []byte("x")) },
			status: http.StatusBadRequest,
		},
		{
			name:   "empty image",
			req:    func(t *testing.T) *http.Request { return scanRequest(t, "", "image", "a.png", []byte{}) },
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown output format",
			req:    func(t *testing.T) *http.Request { return scanRequest(t, "?format=xml", "image", "a.png", []byte("x")) },
			status: http.StatusBadRequest,
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return scanRequest(t, "", "image", "a.png", bytes.Repeat([]byte{1}, 2*1024*1024))
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.scanHandler(w, tt.req(t))
			assert.Equal(t, tt.status, w.Code)

			if tt.status != http.StatusMethodNotAllowed {
				var resp ScanResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.False(t, resp.Success)
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestServer_ScanHandler_Timeout(t *testing.T) {
	reg, err := template.LoadBuiltin()
	require.NoError(t, err)
	s, err := NewServer(Config{MaxUploadMB: 1, TimeoutSec: 1}, blockingProcessor{registry: reg})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.scanHandler(w, scanRequest(t, "", "image", "a.png", []byte("x")))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestCaptureFormat(t *testing.T) {
	tests := []struct {
		explicit, filename, contentType string
		want                            document.Format
	}{
		{"heic", "front.jpg", "image/jpeg", document.FormatHEIC},
		{"", "front.JPG", "application/octet-stream", document.FormatJPEG},
		{"", "blob", "image/png", document.FormatPNG},
		{"", "blob", "application/octet-stream", document.FormatAuto},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, captureFormat(tt.explicit, tt.filename, tt.contentType), tt)
	}
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, Config{}, licenseEngine())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, path := range []string{"/health", "/templates", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Contains(t, body.String(), "idscan_http_requests_total")
}
