package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/thermalsense/internal/monitoring"
)

var logf = monitoring.Component("sensor")

const maxLineBytes = 1 << 20

var _ SkipCounter = (*LineSource)(nil)

// LineSource reads frames from a text stream carrying one frame per line, the
// readings separated by commas or whitespace. Blank lines and lines starting
// with '#' are ignored; malformed lines are logged and skipped because the
// bridge emits partial lines while it boots.
type LineSource struct {
	r    io.ReadCloser
	want int

	once  sync.Once
	lines chan string
	errc  chan error
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	skipped int
}

// NewLineSource wraps r. Reading starts on the first call to Next.
func NewLineSource(r io.ReadCloser, rows, cols int) *LineSource {
	return &LineSource{
		r:     r,
		want:  rows * cols,
		lines: make(chan string),
		errc:  make(chan error, 1),
		done:  make(chan struct{}),
	}
}

func (s *LineSource) start() {
	// The blocking scan runs in its own goroutine so Next can also wait on ctx.
	go func() {
		defer close(s.lines)
		scan := bufio.NewScanner(s.r)
		scan.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scan.Scan() {
			select {
			case s.lines <- scan.Text():
			case <-s.done:
				return
			}
		}
		if err := scan.Err(); err != nil {
			s.errc <- err
		}
	}()
}

// Next blocks until a well-formed frame line arrives and parses it into dst.
func (s *LineSource) Next(ctx context.Context, dst []float64) error {
	if len(dst) != s.want {
		return fmt.Errorf("destination holds %d values, source produces %d: %w", len(dst), s.want, ErrShortFrame)
	}
	s.once.Do(s.start)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				select {
				case err := <-s.errc:
					return fmt.Errorf("sensor read failed: %w", err)
				default:
					return io.EOF
				}
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := ParseFrame(line, dst); err != nil {
				s.mu.Lock()
				s.skipped++
				s.mu.Unlock()
				logf("skipping malformed frame line: %v", err)
				continue
			}
			return nil
		}
	}
}

// Skipped returns how many malformed lines have been discarded.
func (s *LineSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close closes the underlying stream. It is safe to call more than once.
func (s *LineSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.r.Close()
	})
	return s.closeErr
}

// ParseFrame parses a comma- or whitespace-separated list of readings into
// dst. The number of readings must equal len(dst).
func ParseFrame(line string, dst []float64) error {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) != len(dst) {
		return fmt.Errorf("got %d values, want %d: %w", len(fields), len(dst), ErrShortFrame)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return fmt.Errorf("failed to parse value %d (%q): %w", i, f, err)
		}
		dst[i] = v
	}
	return nil
}
