package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

// FixtureSource replays frames recorded in a text file, one frame per line,
// cycling forever at a fixed interval. It stands in for the serial bridge in
// dev mode.
type FixtureSource struct {
	frames   []thermal.Grid
	interval time.Duration
	next     int
	last     time.Time
}

// LoadFixture reads every well-formed frame line from path.
func LoadFixture(path string, rows, cols int, interval time.Duration) (*FixtureSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return ReadFixture(f, rows, cols, interval)
}

// ReadFixture parses frames from r. Malformed lines are an error here, unlike
// on a live port, because a fixture is expected to be clean.
func ReadFixture(r io.Reader, rows, cols int, interval time.Duration) (*FixtureSource, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var frames []thermal.Grid
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		frame, err := thermal.GridFrom(rows, cols, make([]float64, max(rows*cols, 0)))
		if err != nil {
			return nil, fmt.Errorf("fixture: %w", err)
		}
		if err := ParseFrame(line, frame.Data); err != nil {
			return nil, fmt.Errorf("fixture line %d: %w", lineNo, err)
		}
		frames = append(frames, frame)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("fixture contains no frames")
	}

	return &FixtureSource{frames: frames, interval: interval}, nil
}

// Len returns the number of distinct frames in the fixture.
func (s *FixtureSource) Len() int {
	return len(s.frames)
}

// Next waits until interval has passed since the previous frame, then copies
// the next recorded frame into dst.
func (s *FixtureSource) Next(ctx context.Context, dst []float64) error {
	frame := s.frames[s.next%len(s.frames)]
	if len(dst) != len(frame.Data) {
		return fmt.Errorf("destination holds %d values, fixture has %d: %w", len(dst), len(frame.Data), ErrShortFrame)
	}

	if !s.last.IsZero() && s.interval > 0 {
		wait := s.interval - time.Since(s.last)
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	copy(dst, frame.Data)
	s.next++
	s.last = time.Now()
	return nil
}

// Close is a no-op; the fixture is fully loaded into memory.
func (s *FixtureSource) Close() error { return nil }
