// Package thermal holds the data model shared by the acquisition loop and its
// collaborators: temperature grids, soundscape waveforms, per-frame metrics
// rows, heat-range classification and hot/cold threshold derivation.
package thermal

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Default sensor geometry (MLX90640).
const (
	DefaultRows = 24
	DefaultCols = 32
)

// Grid is a row-major 2-D grid of temperature readings in degrees Celsius.
// A Grid produced by a sensor source shares its backing array with the source
// buffer; call Clone before handing it to anything that outlives the frame.
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zeroed rows×cols grid.
func NewGrid(rows, cols int) Grid {
	return Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// GridFrom wraps data as a rows×cols grid without copying.
func GridFrom(rows, cols int, data []float64) (Grid, error) {
	if rows <= 0 || cols <= 0 {
		return Grid{}, fmt.Errorf("invalid grid shape %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return Grid{}, fmt.Errorf("grid shape %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	return Grid{Rows: rows, Cols: cols, Data: data}, nil
}

// Filled returns a rows×cols grid with every cell set to v.
func Filled(rows, cols int, v float64) Grid {
	g := NewGrid(rows, cols)
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

// At returns the reading at row r, column c.
func (g Grid) At(r, c int) float64 {
	return g.Data[r*g.Cols+c]
}

// Set stores v at row r, column c.
func (g Grid) Set(r, c int, v float64) {
	g.Data[r*g.Cols+c] = v
}

// Clone returns an independent copy of g.
func (g Grid) Clone() Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return Grid{Rows: g.Rows, Cols: g.Cols, Data: data}
}

// Mean returns the arithmetic mean of all readings.
func (g Grid) Mean() float64 {
	if len(g.Data) == 0 {
		return 0
	}
	return stat.Mean(g.Data, nil)
}

// Bounds returns the minimum and maximum readings.
func (g Grid) Bounds() (lo, hi float64) {
	if len(g.Data) == 0 {
		return 0, 0
	}
	return floats.Min(g.Data), floats.Max(g.Data)
}

// Waveform is a mono soundscape signal with samples in [-1, 1].
type Waveform struct {
	SampleRate int
	Samples    []float64
}

// Clone returns an independent copy of w.
func (w Waveform) Clone() Waveform {
	samples := make([]float64, len(w.Samples))
	copy(samples, w.Samples)
	return Waveform{SampleRate: w.SampleRate, Samples: samples}
}
