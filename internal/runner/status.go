package runner

import (
	"github.com/banshee-data/thermalsense/internal/audio"
	"github.com/banshee-data/thermalsense/internal/iowork"
	"github.com/banshee-data/thermalsense/internal/sensor"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

// Status is a point-in-time view of a run, safe to read from any goroutine.
type Status struct {
	Running         bool                `json:"running"`
	RunDir          string              `json:"run_dir"`
	Frames          int                 `json:"frames"`
	FPS             float64             `json:"fps"`
	MeanTemperature float64             `json:"mean_temperature"`
	HeatRange       string              `json:"heat_range"`
	Hot             int                 `json:"hot_item_count"`
	Cold            int                 `json:"cold_item_count"`
	Total           int                 `json:"total_item_count"`
	Thresholds      *thermal.Thresholds `json:"thresholds,omitempty"`
	CallbackErrors  uint64              `json:"callback_errors"`
	SkippedLines    int                 `json:"skipped_lines"`
	IO              iowork.Stats        `json:"io"`
	Audio           audio.Stats         `json:"audio"`
}

// Status returns the latest snapshot.
func (r *Runner) Status() Status {
	r.statusMu.RLock()
	s := r.status
	r.statusMu.RUnlock()

	s.Running = r.running.Load()
	s.CallbackErrors = r.callbackErrors.Load()
	s.Audio = r.audio.Stats()
	if sc, ok := r.src.(sensor.SkipCounter); ok {
		s.SkippedLines = sc.Skipped()
	}
	if w := r.workerHandle(); w != nil {
		s.IO = w.Stats()
	}
	return s
}

func (r *Runner) setStatus(fn func(s *Status)) {
	r.statusMu.Lock()
	fn(&r.status)
	r.statusMu.Unlock()
}

func (r *Runner) workerHandle() *iowork.Worker {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.statusWorker
}
