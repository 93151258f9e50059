package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/pipeline"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Templates: s.proc.Registry().Len(),
		Time:      time.Now().UTC().Format(time.RFC3339),
	})
}

// templatesHandler lists the loaded document templates.
func (s *Server) templatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	all := s.proc.Registry().All()
	list := make([]TemplateInfo, len(all))
	for i, t := range all {
		list[i] = TemplateInfo{
			ID:      t.ID,
			Family:  t.Family,
			Version: t.Version,
			Country: t.Country,
			Kind:    t.Kind,
			Generic: t.Generic,
			Fields:  len(t.Fields),
		}
	}
	writeJSON(w, http.StatusOK, TemplatesResponse{Templates: list, Count: len(list)})
}

// scanHandler scans one uploaded capture. The multipart field "image"
// carries the bytes; ?format= selects json, text or csv output.
func (s *Server) scanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	output := strings.ToLower(r.URL.Query().Get("format"))
	switch output {
	case "", pipeline.FormatJSON, pipeline.FormatText, pipeline.FormatCSV:
	default:
		writeErrorResponse(w, "Unsupported output format "+output, http.StatusBadRequest)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	if r.ContentLength > limit {
		writeErrorResponse(w, "Capture too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorResponse(w, "Capture too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorResponse(w, "Failed to read capture", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeErrorResponse(w, "Empty capture", http.StatusBadRequest)
		return
	}
	uploadSizeBytes.Observe(float64(len(data)))

	format := captureFormat(r.FormValue("capture_format"), header.Filename, header.Header.Get("Content-Type"))
	capturedAt := time.Now()
	if v := r.FormValue("captured_at"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			capturedAt = t
		}
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	res, err := s.proc.ProcessStages(ctx, document.NewRawCapture(data, format, capturedAt), nil)
	if err != nil {
		scanRequestsTotal.WithLabelValues("http", "aborted").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			writeErrorResponse(w, "Scan timed out", http.StatusGatewayTimeout)
			return
		}
		slog.Debug("Scan aborted", "error", err)
		writeErrorResponse(w, "Scan aborted", http.StatusServiceUnavailable)
		return
	}
	scanRequestsTotal.WithLabelValues("http", string(res.Status)).Inc()

	switch output {
	case pipeline.FormatText, pipeline.FormatCSV:
		body, err := pipeline.FormatResult(res, output)
		if err != nil {
			writeErrorResponse(w, "Failed to format result", http.StatusInternalServerError)
			return
		}
		ct := "text/plain; charset=utf-8"
		if output == pipeline.FormatCSV {
			ct = "text/csv; charset=utf-8"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.WriteString(w, body)
	default:
		writeJSON(w, http.StatusOK, ScanResponse{Success: res.Status != document.StatusFailed, Result: res, Error: res.Error})
	}
}

// captureFormat picks the capture encoding from an explicit value, the
// file extension, then the part content type. Unknown means sniff.
func captureFormat(explicit, filename, contentType string) document.Format {
	for _, v := range []string{explicit, strings.TrimPrefix(filepath.Ext(filename), "."), contentType} {
		if f := document.ParseFormat(v); f != document.FormatAuto {
			return f
		}
	}
	return document.FormatAuto
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes an error response.
func writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ScanResponse{Success: false, Error: message})
}
