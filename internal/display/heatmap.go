package display

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

const (
	figWidth     = 6 * vg.Inch
	figHeight    = 4.5 * vg.Inch
	barWidth     = 0.9 * vg.Inch
	paletteSteps = 255

	// Initial colour limits before the first frame arrives.
	initialMin = 0.0
	initialMax = 60.0
)

// heatGrid adapts a thermal grid to plotter.GridXYZ with row 0 at the top.
type heatGrid struct {
	g thermal.Grid
}

func (h heatGrid) Dims() (c, r int)   { return h.g.Cols, h.g.Rows }
func (h heatGrid) Z(c, r int) float64 { return h.g.At(h.g.Rows-1-r, c) }
func (h heatGrid) X(c int) float64    { return float64(c) }
func (h heatGrid) Y(r int) float64    { return float64(r) }

// renderHeatMap draws g with a colour bar spanning [lo, hi] and writes a PNG
// to w.
func renderHeatMap(w io.Writer, g thermal.Grid, lo, hi float64, title, caption string) error {
	if hi <= lo {
		hi = lo + 1
	}

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(lo)
	cm.SetMax(hi)

	heat := plot.New()
	heat.Title.Text = title
	heat.X.Label.Text = caption
	hm := plotter.NewHeatMap(heatGrid{g}, cm.Palette(paletteSteps))
	hm.Min, hm.Max = lo, hi
	heat.Add(hm)

	bar := plot.New()
	bar.HideX()
	bar.Y.Label.Text = "°C"
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})

	img := vgimg.New(figWidth, figHeight)
	dc := draw.New(img)
	heat.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))
	bar.Draw(draw.Crop(dc, figWidth-barWidth, 0, 0, 0))

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// writeFileAtomic renders into memory and moves the finished file into place.
func writeFileAtomic(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// HeatMap is a Display backed by a gonum/plot heat map. Update and SetLabels
// mutate the figure state in place; rendering happens only when the figure
// is saved or served, so the acquisition loop never pays for it.
type HeatMap struct {
	mu         sync.Mutex
	title      string
	grid       thermal.Grid
	lo, hi     float64
	hot, cold  int
	total      int
	generation uint64
	redraws    uint64
	closed     bool
}

// NewHeatMap creates the figure once, sized for rows×cols frames.
func NewHeatMap(title string, rows, cols int) *HeatMap {
	return &HeatMap{
		title: title,
		grid:  thermal.NewGrid(rows, cols),
		lo:    initialMin,
		hi:    initialMax,
	}
}

// Update copies the mirrored frame into the figure and rescales the colour
// limits to the frame's range.
func (h *HeatMap) Update(frame thermal.Grid) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.grid.Rows != frame.Rows || h.grid.Cols != frame.Cols {
		h.grid = thermal.NewGrid(frame.Rows, frame.Cols)
	}
	for r := 0; r < frame.Rows; r++ {
		for c := 0; c < frame.Cols; c++ {
			h.grid.Set(r, c, frame.At(r, frame.Cols-1-c))
		}
	}
	h.lo, h.hi = frame.Bounds()
	h.generation++
}

// SetLabels updates the region counters shown under the image.
func (h *HeatMap) SetLabels(hot, cold, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hot, h.cold, h.total = hot, cold, total
}

// Redraw marks the figure as needing a redraw. It never blocks on rendering.
func (h *HeatMap) Redraw() {
	h.mu.Lock()
	h.redraws++
	h.mu.Unlock()
}

// Figure returns h, or nil once closed.
func (h *HeatMap) Figure() Figure {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	return h
}

// Generation counts frames applied with Update. The live view uses it as the
// frame's ETag.
func (h *HeatMap) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation
}

// snapshot returns a copy of the displayed (mirrored) grid and its colour
// limits.
func (h *HeatMap) snapshot() (thermal.Grid, float64, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grid.Clone(), h.lo, h.hi
}

// WritePNG renders the current state of the figure to w.
func (h *HeatMap) WritePNG(w io.Writer) error {
	h.mu.Lock()
	g := h.grid.Clone()
	lo, hi := h.lo, h.hi
	caption := fmt.Sprintf("Hot: %d    Cold: %d    Total: %d", h.hot, h.cold, h.total)
	title := h.title
	h.mu.Unlock()

	return renderHeatMap(w, g, lo, hi, title, caption)
}

// SavePNG renders the current state of the figure to path.
func (h *HeatMap) SavePNG(path string) error {
	return writeFileAtomic(path, h.WritePNG)
}

// Close releases the figure. Later updates are ignored.
func (h *HeatMap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// GridFigure is a Figure over a fixed grid, used for the per-frame thermal
// and cleaned images. Callers pass an independent copy of the grid.
type GridFigure struct {
	Grid  thermal.Grid
	Title string
}

// NewGridFigure returns a figure for g scaled to its own range.
func NewGridFigure(g thermal.Grid, title string) *GridFigure {
	return &GridFigure{Grid: g, Title: title}
}

// SavePNG renders the grid to path.
func (f *GridFigure) SavePNG(path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		lo, hi := f.Grid.Bounds()
		return renderHeatMap(w, f.Grid, lo, hi, f.Title, fmt.Sprintf("%.1f to %.1f °C", lo, hi))
	})
}
