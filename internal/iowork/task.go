package iowork

import (
	"github.com/banshee-data/thermalsense/internal/display"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

// Task is one disk-writing side effect. The concrete types are SaveAudio,
// SaveImage and FlushRows.
type Task interface {
	kind() string
}

// SaveAudio encodes a soundscape to Path. Waveform must be a copy the
// acquisition loop no longer touches.
type SaveAudio struct {
	Waveform thermal.Waveform
	Path     string
}

// SaveImage serialises a figure to Path.
type SaveImage struct {
	Figure display.Figure
	Path   string
}

// FlushRows appends a batch of metrics rows to every row sink.
type FlushRows struct {
	Rows []thermal.MetricsRow
}

// stopTask is the sentinel that ends the worker loop.
type stopTask struct{}

func (SaveAudio) kind() string { return "save_audio" }
func (SaveImage) kind() string { return "save_image" }
func (FlushRows) kind() string { return "flush_rows" }
func (stopTask) kind() string  { return "stop" }
