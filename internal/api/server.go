// Package api serves a small HTTP live view of a running acquisition: the
// current status as JSON, the live heat map as PNG and, when the SQLite store
// is enabled, past runs and their metrics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/thermalsense/internal/monitoring"
	"github.com/banshee-data/thermalsense/internal/runner"
	"github.com/banshee-data/thermalsense/internal/store"
	"github.com/banshee-data/thermalsense/internal/thermal"
	"github.com/banshee-data/thermalsense/internal/version"
)

var logf = monitoring.Component("http")

// ANSI escape codes used by LoggingMiddleware.
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// StatusSource reports the state of the active run.
type StatusSource interface {
	Status() runner.Status
}

// FrameRenderer renders the latest frame as PNG.
type FrameRenderer interface {
	WritePNG(w io.Writer) error
}

// frameCounter is implemented by renderers that can tell whether the frame
// changed since the client last fetched it.
type frameCounter interface {
	Generation() uint64
}

// RunStore lists stored runs and their metrics.
type RunStore interface {
	Runs(ctx context.Context) ([]store.RunSummary, error)
	Metrics(ctx context.Context, runID string) ([]thermal.MetricsRow, error)
}

// Server holds the collaborators behind the HTTP handlers. Any of them may be
// nil; the matching endpoints then answer 404.
type Server struct {
	status StatusSource
	frame  FrameRenderer
	runs   RunStore
}

// NewServer returns a server over the given collaborators.
func NewServer(status StatusSource, frame FrameRenderer, runs RunStore) *Server {
	return &Server{status: status, frame: frame, runs: runs}
}

// ServeMux returns the routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("GET /api/frame.png", s.showFrame)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}/metrics", s.listMetrics)
	mux.HandleFunc("GET /api/version", s.showVersion)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSONError(w, http.StatusNotFound, "no active run")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	if s.frame == nil {
		writeJSONError(w, http.StatusNotFound, "display disabled")
		return
	}

	if fc, ok := s.frame.(frameCounter); ok {
		tag := `"frame-` + strconv.FormatUint(fc.Generation(), 10) + `"`
		if r.Header.Get("If-None-Match") == tag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", tag)
	}

	// Render into a buffer so a failed render can still report an error.
	var buf bytes.Buffer
	if err := s.frame.WritePNG(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to render frame: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		logf("failed to write frame: %v", err)
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSONError(w, http.StatusNotFound, "store disabled")
		return
	}
	runs, err := s.runs.Runs(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

type metricsResponse struct {
	RunID   string     `json:"run_id"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSONError(w, http.StatusNotFound, "store disabled")
		return
	}
	id := r.PathValue("id")
	rows, err := s.runs.Metrics(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to read metrics: "+err.Error())
		return
	}
	if len(rows) == 0 {
		writeJSONError(w, http.StatusNotFound, "no metrics for run "+id)
		return
	}

	resp := metricsResponse{RunID: id, Columns: thermal.CSVHeader, Rows: make([][]string, len(rows))}
	for i, row := range rows {
		resp.Rows[i] = row.Record()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		logf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
