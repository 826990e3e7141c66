// Package processor turns raw thermal frames into cleaned grids and audio
// soundscapes, counts hot and cold regions, and encodes soundscapes to WAV.
//
// The acquisition loop only depends on the Processor interface; ThermalSense
// is the default implementation.
package processor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

// Result is the output of processing one frame. The orchestrator owns it for
// the duration of a single iteration.
type Result struct {
	Cleaned  thermal.Grid
	Waveform thermal.Waveform
}

// Processor is the frame processing contract used by the acquisition loop.
type Processor interface {
	// Process cleans frame and synthesises its soundscape. frame must not be
	// retained after Process returns.
	Process(frame thermal.Grid) Result
	// DetectHotColdRegions counts connected regions above hot and below cold.
	DetectHotColdRegions(cleaned thermal.Grid, hot, cold float64) (hotCount, coldCount int)
	// ActiveRanges returns the label → ranges table for the configured mode.
	ActiveRanges() thermal.Ranges
	// SaveAudio encodes w as a playable file at path.
	SaveAudio(w thermal.Waveform, path string) error
}

// Modes.
const (
	ModeDefault    = "default"
	ModeHuman      = "human"
	ModeIndustrial = "industrial"
)

var modeRanges = map[string]thermal.Ranges{
	ModeDefault: {
		"very cold": {{Low: 0, High: 10}},
		"cold":      {{Low: 10, High: 20}},
		"neutral":   {{Low: 20, High: 30}},
		"warm":      {{Low: 30, High: 40}},
		"hot":       {{Low: 40, High: 70}},
	},
	ModeHuman: {
		"background": {{Low: 10, High: 24}},
		"skin":       {{Low: 24, High: 32}},
		"body":       {{Low: 32, High: 38}},
		"fever":      {{Low: 38, High: 45}},
	},
	ModeIndustrial: {
		"frozen":  {{Low: -20, High: 0}},
		"ambient": {{Low: 0, High: 35}},
		"warm":    {{Low: 35, High: 80}},
		"hot":     {{Low: 80, High: 200}},
	},
}

// Modes returns the names of the built-in range tables.
func Modes() []string {
	names := make([]string, 0, len(modeRanges))
	for name := range modeRanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RangesForMode returns a copy of the built-in table for mode.
func RangesForMode(mode string) (thermal.Ranges, error) {
	src, ok := modeRanges[strings.ToLower(mode)]
	if !ok {
		return nil, fmt.Errorf("unknown mode %q (valid: %s)", mode, strings.Join(Modes(), ", "))
	}
	return copyRanges(src), nil
}

func copyRanges(src thermal.Ranges) thermal.Ranges {
	out := make(thermal.Ranges, len(src))
	for label, ranges := range src {
		out[label] = append([]thermal.Range(nil), ranges...)
	}
	return out
}

// Config is accepted by New.
type Config struct {
	// Mode selects a built-in range table. Empty means ModeDefault.
	Mode string
	// CustomRanges replaces the mode table entirely when non-empty.
	CustomRanges thermal.Ranges
	// SampleRate of the synthesised soundscape (default 44100).
	SampleRate int
	// SoundDuration of each frame's soundscape (default 500ms).
	SoundDuration time.Duration
	// MinRegionCells drops connected regions smaller than this (default 1).
	MinRegionCells int
}

// Defaults.
const (
	DefaultSampleRate    = 44100
	DefaultSoundDuration = 500 * time.Millisecond
)
