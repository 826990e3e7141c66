package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/thermalsense/internal/display"
	"github.com/banshee-data/thermalsense/internal/monitoring"
	"github.com/banshee-data/thermalsense/internal/runner"
	"github.com/banshee-data/thermalsense/internal/store"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type staticStatus runner.Status

func (s staticStatus) Status() runner.Status { return runner.Status(s) }

type brokenRenderer struct{}

func (brokenRenderer) WritePNG(io.Writer) error { return errors.New("no frame yet") }

type fakeRuns struct {
	runs    []store.RunSummary
	metrics map[string][]thermal.MetricsRow
	err     error
}

func (f *fakeRuns) Runs(context.Context) ([]store.RunSummary, error) { return f.runs, f.err }

func (f *fakeRuns) Metrics(_ context.Context, id string) ([]thermal.MetricsRow, error) {
	return f.metrics[id], f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestShowStatus(t *testing.T) {
	th := thermal.Thresholds{Hot: 40, Cold: 10}
	srv := NewServer(staticStatus{Running: true, Frames: 12, HeatRange: "warm", MeanTemperature: 33.5, Thresholds: &th}, nil, nil)

	rec := get(t, srv.ServeMux(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["running"])
	assert.Equal(t, 12.0, got["frames"])
	assert.Equal(t, "warm", got["heat_range"])
	assert.Equal(t, map[string]interface{}{"hot": 40.0, "cold": 10.0}, got["thresholds"])
}

func TestShowStatusWithoutRun(t *testing.T) {
	rec := get(t, NewServer(nil, nil, nil).ServeMux(), "/api/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShowFrame(t *testing.T) {
	hm := display.NewHeatMap("live", 4, 4)
	hm.Update(thermal.Filled(4, 4, 21))

	rec := get(t, NewServer(nil, hm, nil).ServeMux(), "/api/frame.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
}

func TestShowFrameNotModified(t *testing.T) {
	hm := display.NewHeatMap("live", 4, 4)
	hm.Update(thermal.Filled(4, 4, 21))
	mux := NewServer(nil, hm, nil).ServeMux()

	rec := get(t, mux, "/api/frame.png")
	require.Equal(t, http.StatusOK, rec.Code)
	tag := rec.Header().Get("ETag")
	assert.Equal(t, `"frame-1"`, tag)

	req := httptest.NewRequest(http.MethodGet, "/api/frame.png", nil)
	req.Header.Set("If-None-Match", tag)
	cached := httptest.NewRecorder()
	mux.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)
	assert.Zero(t, cached.Body.Len())

	hm.Update(thermal.Filled(4, 4, 22))
	cached = httptest.NewRecorder()
	mux.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusOK, cached.Code)
	assert.Equal(t, `"frame-2"`, cached.Header().Get("ETag"))
}

func TestShowFrameErrors(t *testing.T) {
	rec := get(t, NewServer(nil, nil, nil).ServeMux(), "/api/frame.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, NewServer(nil, brokenRenderer{}, nil).ServeMux(), "/api/frame.png")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "no frame yet")
}

func TestListRuns(t *testing.T) {
	runs := &fakeRuns{runs: []store.RunSummary{{ID: "abc", Mode: "human", Frames: 3}}}
	rec := get(t, NewServer(nil, nil, runs).ServeMux(), "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []store.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].ID)
	assert.Equal(t, 3, got[0].Frames)
}

func TestListRunsEmptyAndErrors(t *testing.T) {
	rec := get(t, NewServer(nil, nil, &fakeRuns{}).ServeMux(), "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, NewServer(nil, nil, &fakeRuns{err: errors.New("locked")}).ServeMux(), "/api/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = get(t, NewServer(nil, nil, nil).ServeMux(), "/api/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMetrics(t *testing.T) {
	runs := &fakeRuns{metrics: map[string][]thermal.MetricsRow{
		"abc": {{FrameNumber: 0, MeanTemperature: 21.5, HeatRange: "neutral", TotalCount: 2, HotCount: 2}},
	}}
	mux := NewServer(nil, nil, runs).ServeMux()

	rec := get(t, mux, "/api/runs/abc/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var got metricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "abc", got.RunID)
	assert.Equal(t, thermal.CSVHeader, got.Columns)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, []string{"0", "21.5", "neutral", "", "", "", "", "2", "0", "2"}, got.Rows[0])

	rec = get(t, mux, "/api/runs/missing/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	NewServer(staticStatus{}, nil, nil).ServeMux().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestShowVersion(t *testing.T) {
	rec := get(t, NewServer(nil, nil, nil).ServeMux(), "/api/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version"`)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	defer monitoring.SetLogger(nil)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := get(t, h, "/anything")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, lines, 1)
	assert.Equal(t, colorBoldRed+"418"+colorReset, statusCodeColor(418))
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
}
