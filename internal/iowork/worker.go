// Package iowork runs every disk-writing side effect of the acquisition loop
// on a single background goroutine so the loop never waits on storage.
package iowork

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/thermalsense/internal/monitoring"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

var logf = monitoring.Component("io")

var (
	// ErrStopped is returned by Enqueue once Stop has been called.
	ErrStopped = errors.New("io worker stopped")
	// ErrQueueFull is returned when a media task is dropped for lack of room.
	ErrQueueFull = errors.New("io queue full")
	// ErrJoinTimeout is returned by Stop when the worker did not exit in time.
	ErrJoinTimeout = errors.New("io worker did not stop before timeout")
)

// Defaults.
const (
	DefaultQueueSize   = 256
	DefaultWaitTimeout = time.Second
	DefaultJoinTimeout = 2 * time.Second
)

// AudioEncoder writes a waveform to a playable file.
type AudioEncoder interface {
	SaveAudio(w thermal.Waveform, path string) error
}

// Config configures a Worker.
type Config struct {
	// QueueSize bounds the number of pending tasks.
	QueueSize int
	// WaitTimeout is how long the worker waits for a task before
	// re-checking for shutdown.
	WaitTimeout time.Duration
	// Encoder handles SaveAudio tasks.
	Encoder AudioEncoder
	// Sinks receive every FlushRows batch, in order.
	Sinks []thermal.RowWriter
}

// Stats counts task outcomes.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`

	// Blocked counts FlushRows batches that found the queue full, and
	// BlockedTime is the total time the caller spent waiting for them.
	Blocked     uint64        `json:"blocked"`
	BlockedTime time.Duration `json:"blocked_ns"`
}

// Worker consumes a bounded task queue on one goroutine.
type Worker struct {
	tasks       chan Task
	waitTimeout time.Duration
	encoder     AudioEncoder
	sinks       []thermal.RowWriter

	startOnce sync.Once
	started   atomic.Bool
	stopping  atomic.Bool
	done      chan struct{}

	stopOnce sync.Once
	stopErr  error

	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	blocked   atomic.Uint64
	blockedNs atomic.Int64
}

// New returns a worker that is not yet running.
func New(cfg Config) *Worker {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	wait := cfg.WaitTimeout
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	return &Worker{
		tasks:       make(chan Task, size),
		waitTimeout: wait,
		encoder:     cfg.Encoder,
		sinks:       cfg.Sinks,
		done:        make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling it again has no effect.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.run()
	})
}

// Enqueue hands t to the worker. Media tasks never block: when the queue is
// full they are dropped and ErrQueueFull is returned. FlushRows waits for
// room so metrics rows are never lost to back-pressure.
func (w *Worker) Enqueue(t Task) error {
	if w.stopping.Load() {
		return ErrStopped
	}

	if _, ok := t.(FlushRows); ok {
		select {
		case w.tasks <- t:
			w.enqueued.Add(1)
			return nil
		default:
		}

		w.blocked.Add(1)
		start := time.Now()
		defer func() { w.blockedNs.Add(int64(time.Since(start))) }()
		select {
		case w.tasks <- t:
			w.enqueued.Add(1)
			return nil
		case <-w.done:
			return ErrStopped
		}
	}

	select {
	case w.tasks <- t:
		w.enqueued.Add(1)
		return nil
	default:
		w.dropped.Add(1)
		logf("queue full, dropping %s task", t.kind())
		return ErrQueueFull
	}
}

func (w *Worker) run() {
	defer close(w.done)

	timer := time.NewTimer(w.waitTimeout)
	defer timer.Stop()

	for {
		select {
		case t := <-w.tasks:
			if _, ok := t.(stopTask); ok {
				return
			}
			w.execute(t)
		case <-timer.C:
			if w.stopping.Load() && len(w.tasks) == 0 {
				return
			}
		}
		timer.Reset(w.waitTimeout)
	}
}

// execute runs one task. Errors and panics are logged and counted; the worker
// always moves on to the next task.
func (w *Worker) execute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			w.failed.Add(1)
			logf("%s task panicked: %v", t.kind(), r)
		}
	}()

	if err := w.dispatch(t); err != nil {
		w.failed.Add(1)
		logf("%s task failed: %v", t.kind(), err)
		return
	}
	w.processed.Add(1)
}

func (w *Worker) dispatch(t Task) error {
	switch t := t.(type) {
	case SaveAudio:
		if w.encoder == nil {
			return fmt.Errorf("no audio encoder configured")
		}
		return w.encoder.SaveAudio(t.Waveform, t.Path)
	case SaveImage:
		if t.Figure == nil {
			return fmt.Errorf("no figure to save to %s", t.Path)
		}
		return t.Figure.SavePNG(t.Path)
	case FlushRows:
		var errs []error
		for _, sink := range w.sinks {
			if err := sink.WriteRows(t.Rows); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	default:
		return fmt.Errorf("unknown task type %T", t)
	}
}

// Stop sends the shutdown sentinel and waits up to timeout for the worker to
// exit. Tasks queued ahead of the sentinel are still executed; whatever is
// left when the timeout expires is abandoned. Stop is idempotent and returns
// the same result every time.
func (w *Worker) Stop(timeout time.Duration) error {
	w.stopOnce.Do(func() {
		w.stopping.Store(true)
		if !w.started.Load() {
			return
		}
		if timeout <= 0 {
			timeout = DefaultJoinTimeout
		}

		deadline := time.NewTimer(timeout)
		defer deadline.Stop()

		select {
		case w.tasks <- stopTask{}:
		case <-w.done:
			return
		case <-deadline.C:
			w.stopErr = ErrJoinTimeout
			return
		}

		select {
		case <-w.done:
		case <-deadline.C:
			w.stopErr = ErrJoinTimeout
		}
	})
	return w.stopErr
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Stats returns the current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Enqueued:  w.enqueued.Load(),
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
		Pending:   len(w.tasks),

		Blocked:     w.blocked.Load(),
		BlockedTime: time.Duration(w.blockedNs.Load()),
	}
}
