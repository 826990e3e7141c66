// Package runner drives the acquisition loop: it pulls frames from a sensor,
// processes them, feeds the display and audio, and hands every disk write to
// a background I/O worker.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/thermalsense/internal/audio"
	"github.com/banshee-data/thermalsense/internal/csvlog"
	"github.com/banshee-data/thermalsense/internal/display"
	"github.com/banshee-data/thermalsense/internal/iowork"
	"github.com/banshee-data/thermalsense/internal/monitoring"
	"github.com/banshee-data/thermalsense/internal/processor"
	"github.com/banshee-data/thermalsense/internal/sensor"
	"github.com/banshee-data/thermalsense/internal/store"
	"github.com/banshee-data/thermalsense/internal/thermal"
	"github.com/banshee-data/thermalsense/internal/timeutil"
)

var logf = monitoring.Component("runner")

// ErrClosed is returned by Start once the runner has shut down. A runner
// owns one run directory and one CSV file, so it cannot be restarted.
var ErrClosed = errors.New("runner closed")

// RunDirPrefix names every run directory.
const RunDirPrefix = "ThermalSense-"

const stampLayout = "2006-01-02_15-04-05"

// Config controls what a run saves and how it is paced.
type Config struct {
	OutputRoot string
	Mode       string

	Rows int
	Cols int

	SaveCSV    bool
	SaveFrames bool
	SaveSound  bool
	SaveImages bool

	FlushRows   int
	FPSWindow   int
	QueueSize   int
	WaitTimeout time.Duration
	JoinTimeout time.Duration

	// Verbose logs one line per frame.
	Verbose bool
}

func (c Config) withDefaults() Config {
	if c.Rows <= 0 {
		c.Rows = thermal.DefaultRows
	}
	if c.Cols <= 0 {
		c.Cols = thermal.DefaultCols
	}
	if c.FlushRows <= 0 {
		c.FlushRows = csvlog.DefaultFlushRows
	}
	if c.FPSWindow <= 0 {
		c.FPSWindow = thermal.DefaultFrameRateWindow
	}
	if c.QueueSize <= 0 {
		c.QueueSize = iowork.DefaultQueueSize
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = iowork.DefaultWaitTimeout
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = iowork.DefaultJoinTimeout
	}
	return c
}

// Callback receives every raw frame before it is processed. The grid is
// reused on the next iteration; clone it to keep it. Errors and panics are
// logged and the loop carries on.
//
// stop ends the run after the current callback returns. A callback must use
// it rather than Runner.Stop, which waits for the loop and would deadlock.
type Callback func(frame thermal.Grid, stop StopFunc) error

// StopFunc asks the loop to end without waiting for it.
type StopFunc func()

// Deps are the collaborators a runner drives. Source and Processor are
// required; the rest are optional.
type Deps struct {
	Source    sensor.Source
	Processor processor.Processor
	Display   display.Display
	Player    audio.Player
	Store     *store.Store
	Clock     timeutil.Clock
	Callback  Callback
}

// Runner is one acquisition run.
type Runner struct {
	cfg Config

	src      sensor.Source
	proc     processor.Processor
	disp     display.Display
	audio    *audio.Controller
	db       *store.Store
	clock    timeutil.Clock
	callback Callback

	dir     string
	csvPath string

	running atomic.Bool

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	loopDone chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error

	// Owned by the loop goroutine between Start and shutdown.
	csv        *csvlog.Writer
	buf        *csvlog.Buffer
	sinks      []thermal.RowWriter
	worker     *iowork.Worker
	run        *store.Run
	fps        *thermal.FrameRate
	thresholds thermal.Thresholds
	frame      int

	callbackErrors atomic.Uint64

	statusMu     sync.RWMutex
	status       Status
	statusWorker *iowork.Worker
}

// New validates deps and creates the run directory
// <OutputRoot>/ThermalSense-<YYYY-MM-DD_HH-MM-SS> with its cleaned/ and
// thermal/ subdirectories. Nothing else is opened until Start.
func New(cfg Config, deps Deps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("runner: no sensor source")
	}
	if deps.Processor == nil {
		return nil, errors.New("runner: no frame processor")
	}
	cfg = cfg.withDefaults()

	r := &Runner{
		cfg:      cfg,
		src:      deps.Source,
		proc:     deps.Processor,
		disp:     deps.Display,
		audio:    audio.NewController(deps.Player),
		db:       deps.Store,
		clock:    deps.Clock,
		callback: deps.Callback,
		loopDone: make(chan struct{}),
	}
	if r.disp == nil {
		r.disp = display.Nop{}
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}

	root, err := filepath.Abs(cfg.OutputRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve output root: %w", err)
	}
	stamp := r.clock.Now().Format(stampLayout)
	r.dir = filepath.Join(root, RunDirPrefix+stamp)
	r.csvPath = filepath.Join(r.dir, RunDirPrefix+stamp+".csv")

	for _, sub := range []string{r.dir, r.CleanedDir(), r.ThermalDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("create run directory: %w", err)
		}
	}
	logf("results will be saved to %s", r.dir)

	r.status.RunDir = r.dir
	return r, nil
}

// Dir returns the run directory.
func (r *Runner) Dir() string { return r.dir }

// CSVPath returns the metrics log path. The file only exists once Start has
// run with SaveCSV set.
func (r *Runner) CSVPath() string { return r.csvPath }

// CleanedDir holds the per-frame cleaned-grid images.
func (r *Runner) CleanedDir() string { return filepath.Join(r.dir, "cleaned") }

// ThermalDir holds the per-frame raw-grid images.
func (r *Runner) ThermalDir() string { return filepath.Join(r.dir, "thermal") }

// Running reports whether the loop is active.
func (r *Runner) Running() bool { return r.running.Load() }

// Start opens the run's resources and runs the loop on the calling goroutine
// until Stop is called, ctx is cancelled or the sensor fails. Shutdown has
// completed by the time Start returns.
//
// Calling Start while the loop is running logs a warning and returns nil.
// Calling it after shutdown returns ErrClosed.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running.Load() {
		r.mu.Unlock()
		logf("already running, ignoring start")
		return nil
	}
	if r.started {
		r.mu.Unlock()
		return ErrClosed
	}
	r.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running.Store(true)
	r.mu.Unlock()
	defer cancel()

	var loopErr error
	if err := r.open(loopCtx); err != nil {
		loopErr = err
	} else {
		logf("started (press Ctrl+C to stop)")
		loopErr = r.loop(loopCtx)
	}

	r.running.Store(false)
	close(r.loopDone)

	return errors.Join(loopErr, r.shutdown())
}

// open acquires everything the loop writes to.
func (r *Runner) open(ctx context.Context) error {
	r.buf = csvlog.NewBuffer(r.cfg.FlushRows)
	r.fps = thermal.NewFrameRate(r.cfg.FPSWindow)

	if r.cfg.SaveCSV {
		w, err := csvlog.Create(r.csvPath)
		if err != nil {
			return err
		}
		r.csv = w
		r.sinks = append(r.sinks, w)
	}

	if r.db != nil {
		run, err := r.db.BeginRun(ctx, store.RunInfo{
			StartedAt: r.clock.Now(),
			OutputDir: r.dir,
			Mode:      r.cfg.Mode,
			Rows:      r.cfg.Rows,
			Cols:      r.cfg.Cols,
		})
		if err != nil {
			return err
		}
		r.run = run
		r.sinks = append(r.sinks, run)
	}

	r.worker = iowork.New(iowork.Config{
		QueueSize:   r.cfg.QueueSize,
		WaitTimeout: r.cfg.WaitTimeout,
		Encoder:     r.proc,
		Sinks:       r.sinks,
	})
	r.worker.Start()

	r.statusMu.Lock()
	r.statusWorker = r.worker
	r.statusMu.Unlock()
	return nil
}

// RequestStop asks the loop to end after its current iteration and returns
// immediately. It is the StopFunc handed to the frame callback.
func (r *Runner) RequestStop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop ends the loop and waits for shutdown: buffered rows are flushed, audio
// is stopped, the worker is joined and files are closed. Stop is idempotent
// and a no-op when the runner was never started. It may be called from any
// goroutine except the frame callback; see Callback.
func (r *Runner) Stop() error {
	r.RequestStop()

	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	<-r.loopDone
	return r.shutdown()
}

// shutdown releases every resource exactly once. The final flush happens
// only after the worker has been joined, so the CSV file never sees two
// writers at the same time.
func (r *Runner) shutdown() error {
	r.shutdownOnce.Do(func() {
		var errs []error

		r.audio.Stop()

		if r.worker != nil {
			if err := r.worker.Stop(r.cfg.JoinTimeout); err != nil {
				logf("io worker: %v; remaining tasks abandoned", err)
			}
		}

		if r.buf != nil {
			if rows := r.buf.Drain(); len(rows) > 0 {
				for _, sink := range r.sinks {
					if err := sink.WriteRows(rows); err != nil {
						errs = append(errs, fmt.Errorf("final flush: %w", err))
					}
				}
			}
		}

		if r.run != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if r.frame > 0 {
				if err := r.run.SetThresholds(ctx, r.thresholds); err != nil {
					logf("store thresholds: %v", err)
				}
			}
			if err := r.run.End(ctx, r.clock.Now()); err != nil {
				logf("end run: %v", err)
			}
			cancel()
		}

		if r.csv != nil {
			if err := r.csv.Close(); err != nil {
				errs = append(errs, err)
			}
			logf("CSV saved at %s (%d rows)", r.csv.Path(), r.csv.Rows())
		}

		if err := r.disp.Close(); err != nil {
			logf("close display: %v", err)
		}
		if err := r.src.Close(); err != nil {
			logf("close sensor: %v", err)
		}

		r.setStatus(func(s *Status) {
			s.Running = false
		})
		logf("stopped after %d frames", r.frame)
		r.shutdownErr = errors.Join(errs...)
	})
	return r.shutdownErr
}
