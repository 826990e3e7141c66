// Package store mirrors run metadata and per-frame metrics into SQLite so runs
// can be queried after the fact alongside the CSV log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

// DefaultFilename is the database file created inside a run directory when
// no explicit path is configured.
const DefaultFilename = "thermalsense.db"

// ErrRunEnded is returned when rows are written to a finished run.
var ErrRunEnded = errors.New("run already ended")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Store is a SQLite database holding runs and their metrics rows.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and brings the
// schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInfo describes a run at the moment it starts.
type RunInfo struct {
	StartedAt time.Time
	OutputDir string
	Mode      string
	Rows      int
	Cols      int
}

// Run is one acquisition run. It implements thermal.RowWriter so the
// background worker can mirror every CSV batch into the database.
type Run struct {
	ID    string
	store *Store
	ended atomic.Bool
}

// BeginRun records a new run and returns its handle.
func (s *Store) BeginRun(ctx context.Context, info RunInfo) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, output_dir, mode, frame_rows, frame_cols) VALUES (?, ?, ?, ?, ?, ?)`,
		id, info.StartedAt.UTC(), info.OutputDir, info.Mode, info.Rows, info.Cols)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: id, store: s}, nil
}

// SetThresholds stores the hot/cold thresholds derived on the first frame.
func (r *Run) SetThresholds(ctx context.Context, th thermal.Thresholds) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET cold_threshold = ?, hot_threshold = ? WHERE run_id = ?`,
		th.Cold, th.Hot, r.ID)
	if err != nil {
		return fmt.Errorf("update thresholds: %w", err)
	}
	return nil
}

// WriteRows inserts a batch in a single transaction.
func (r *Run) WriteRows(rows []thermal.MetricsRow) error {
	if r.ended.Load() {
		return ErrRunEnded
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.store.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO frame_metrics (
		run_id, frame_number, mean_temperature, heat_range,
		image_filename, wav_filename, cleaned_image, thermal_image,
		hot_item_count, cold_item_count, total_item_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			r.ID, row.FrameNumber, row.MeanTemperature, row.HeatRange,
			row.ImageFilename, row.WavFilename, row.CleanedImagePath, row.ThermalImagePath,
			row.HotCount, row.ColdCount, row.TotalCount,
		); err != nil {
			return fmt.Errorf("insert frame %d: %w", row.FrameNumber, err)
		}
	}
	return tx.Commit()
}

// End stamps the run as finished. Later WriteRows calls fail.
func (r *Run) End(ctx context.Context, at time.Time) error {
	if !r.ended.CompareAndSwap(false, true) {
		return nil
	}
	_, err := r.store.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE run_id = ?`, at.UTC(), r.ID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	return nil
}

// RunSummary is a row of the runs table plus its frame count.
type RunSummary struct {
	ID        string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	OutputDir string    `json:"output_dir"`
	Mode      string    `json:"mode"`
	Frames    int       `json:"frames"`
	Ended     bool      `json:"ended"`
}

// Runs lists all runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at, r.output_dir, r.mode, r.ended_at IS NOT NULL,
		       (SELECT COUNT(*) FROM frame_metrics m WHERE m.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.ID, &rs.StartedAt, &rs.OutputDir, &rs.Mode, &rs.Ended, &rs.Frames); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Metrics returns the rows stored for a run in frame order.
func (s *Store) Metrics(ctx context.Context, runID string) ([]thermal.MetricsRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT frame_number, mean_temperature, heat_range,
		       COALESCE(image_filename, ''), COALESCE(wav_filename, ''),
		       COALESCE(cleaned_image, ''), COALESCE(thermal_image, ''),
		       hot_item_count, cold_item_count, total_item_count
		FROM frame_metrics
		WHERE run_id = ?
		ORDER BY frame_number`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []thermal.MetricsRow
	for rows.Next() {
		var m thermal.MetricsRow
		if err := rows.Scan(
			&m.FrameNumber, &m.MeanTemperature, &m.HeatRange,
			&m.ImageFilename, &m.WavFilename, &m.CleanedImagePath, &m.ThermalImagePath,
			&m.HotCount, &m.ColdCount, &m.TotalCount,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
