package sensor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

// SequenceSource yields a fixed list of grids in order. When the list is
// exhausted it either returns io.EOF or, with Hold set, blocks until ctx is
// cancelled, which mimics a sensor that simply stops producing frames.
type SequenceSource struct {
	Hold bool

	mu     sync.Mutex
	grids  []thermal.Grid
	next   int
	closed bool
}

// NewSequenceSource returns a source over grids. The grids are not copied.
func NewSequenceSource(grids ...thermal.Grid) *SequenceSource {
	return &SequenceSource{grids: grids}
}

// Next copies the next grid into dst.
func (s *SequenceSource) Next(ctx context.Context, dst []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.next >= len(s.grids) {
		s.mu.Unlock()
		if s.Hold {
			<-ctx.Done()
			return ctx.Err()
		}
		return io.EOF
	}
	g := s.grids[s.next]
	if len(g.Data) != len(dst) {
		s.mu.Unlock()
		return fmt.Errorf("grid %d holds %d values, want %d: %w", s.next, len(g.Data), len(dst), ErrShortFrame)
	}
	copy(dst, g.Data)
	s.next++
	s.mu.Unlock()
	return nil
}

// Served returns how many grids have been handed out.
func (s *SequenceSource) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close marks the source closed.
func (s *SequenceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *SequenceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
