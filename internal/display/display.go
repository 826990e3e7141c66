// Package display renders thermal frames as heat-map figures. The acquisition
// loop only sees the Display interface; the figure behind it is created once
// and updated in place every frame.
package display

import (
	"github.com/banshee-data/thermalsense/internal/thermal"
)

// Figure is something that can be serialised to a PNG file.
type Figure interface {
	SavePNG(path string) error
}

// Display is the live view driven by the acquisition loop.
type Display interface {
	// Update replaces the image data and rescales the colour limits and
	// colour bar to the frame's range.
	Update(frame thermal.Grid)
	// SetLabels sets the hot, cold and total region counters.
	SetLabels(hot, cold, total int)
	// Redraw requests a redraw without waiting for it.
	Redraw()
	// Figure returns the live figure, or nil when there is none to save.
	Figure() Figure
	// Close releases the figure.
	Close() error
}

// Nop is a Display that does nothing and has no figure.
type Nop struct{}

func (Nop) Update(thermal.Grid)   {}
func (Nop) SetLabels(_, _, _ int) {}
func (Nop) Redraw()               {}
func (Nop) Figure() Figure        { return nil }
func (Nop) Close() error          { return nil }
