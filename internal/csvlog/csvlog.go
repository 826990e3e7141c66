// Package csvlog writes the per-run metrics log. Rows are accumulated in a
// Buffer by the acquisition loop and written in batches by the I/O worker; the
// last partial batch is written synchronously when the run stops.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

// DefaultFlushRows is the batch size handed to the I/O worker.
const DefaultFlushRows = 10

// Writer appends metrics rows to a CSV file. The worker and the final flush
// never overlap in normal operation; the mutex keeps them apart even when the
// worker outlives its join timeout.
type Writer struct {
	path string

	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	rows   int
	closed bool
}

// Create creates (or truncates) path and writes the header row.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv log: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(thermal.CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	return &Writer{path: path, file: f, w: w}, nil
}

// Path returns the file location.
func (w *Writer) Path() string {
	return w.path
}

// WriteRows appends rows in order and forces them to stable storage. Once the
// writer is closed it does nothing.
func (w *Writer) WriteRows(rows []thermal.MetricsRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	for _, row := range rows {
		if err := w.w.Write(row.Record()); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", row.FrameNumber, err)
		}
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv log: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync csv log: %w", err)
	}
	w.rows += len(rows)
	return nil
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	w.w.Flush()
	flushErr := w.w.Error()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close csv log: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("failed to flush csv log: %w", flushErr)
	}
	return nil
}

// Buffer accumulates rows until the flush threshold is reached. It is owned
// by the acquisition loop and not safe for concurrent use.
type Buffer struct {
	size int
	rows []thermal.MetricsRow
}

// NewBuffer returns a buffer that fills after size rows.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = DefaultFlushRows
	}
	return &Buffer{size: size, rows: make([]thermal.MetricsRow, 0, size)}
}

// Add appends row. When the buffer reaches its threshold it returns a copy of
// the buffered rows, clears itself and reports true.
func (b *Buffer) Add(row thermal.MetricsRow) ([]thermal.MetricsRow, bool) {
	b.rows = append(b.rows, row)
	if len(b.rows) < b.size {
		return nil, false
	}
	return b.Drain(), true
}

// Drain returns a copy of any buffered rows and clears the buffer.
func (b *Buffer) Drain() []thermal.MetricsRow {
	if len(b.rows) == 0 {
		return nil
	}
	batch := make([]thermal.MetricsRow, len(b.rows))
	copy(batch, b.rows)
	b.rows = b.rows[:0]
	return batch
}

// Len returns the number of buffered rows.
func (b *Buffer) Len() int {
	return len(b.rows)
}

// Size returns the flush threshold.
func (b *Buffer) Size() int {
	return b.size
}
