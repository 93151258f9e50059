package server

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/session"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	proc        session.Processor
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	version     string
	rateLimiter *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	Version     string

	// Rate limiting for POST /scan, zero values disable a limit.
	RateLimitEnabled  bool
	RequestsPerMinute int
	RequestsPerHour   int
	MaxRequestsPerDay int
	MaxDataPerDay     int64
}

// Response types for API endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Templates int    `json:"templates"`
	Time      string `json:"time"`
}

type TemplateInfo struct {
	ID      string `json:"id"`
	Family  string `json:"family"`
	Version int    `json:"version"`
	Country string `json:"country,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Generic bool   `json:"generic,omitempty"`
	Fields  int    `json:"fields"`
}

type TemplatesResponse struct {
	Templates []TemplateInfo `json:"templates"`
	Count     int            `json:"count"`
}

type ScanResponse struct {
	Success bool                 `json:"success"`
	Result  *document.ScanResult `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// NewServer creates a server scanning with proc. The processor is owned by
// the caller.
func NewServer(config Config, proc session.Processor) (*Server, error) {
	if proc == nil {
		return nil, errors.New("processor is required")
	}
	s := &Server{
		proc:        proc,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		version:     config.Version,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if config.RateLimitEnabled {
		s.rateLimiter = NewRateLimiter(config.RequestsPerMinute, config.RequestsPerHour,
			config.MaxRequestsPerDay, config.MaxDataPerDay)
	}
	return s, nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/templates", s.corsMiddleware(s.templatesHandler))
	mux.HandleFunc("/scan", s.corsMiddleware(s.rateLimitMiddleware(s.scanHandler)))
	mux.HandleFunc("/ws", s.corsMiddleware(s.scanWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return loggingMiddleware(mux)
}
