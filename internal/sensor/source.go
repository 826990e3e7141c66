// Package sensor provides thermal frame sources. A source yields one
// temperature grid per call and blocks until the hardware has one ready, so
// the acquisition loop is paced by the sensor rather than by a timer.
package sensor

import (
	"context"
	"errors"
)

// ErrShortFrame is returned when a frame line does not carry rows×cols values.
var ErrShortFrame = errors.New("frame has wrong number of values")

// Source is a blocking frame producer. Next fills dst (len rows×cols) with the
// next frame's readings in row-major order. It returns ctx.Err() when ctx is
// cancelled and io.EOF when a finite source is exhausted.
type Source interface {
	Next(ctx context.Context, dst []float64) error
	Close() error
}

// SkipCounter is implemented by sources that discard malformed input rather
// than failing.
type SkipCounter interface {
	Skipped() int
}
