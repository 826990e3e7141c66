package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/thermalsense/internal/display"
	"github.com/banshee-data/thermalsense/internal/iowork"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

// FrameImageName is the per-frame PNG file name.
func FrameImageName(frame int) string { return fmt.Sprintf("frame_%03d.png", frame) }

// FrameAudioName is the per-frame WAV file name.
func FrameAudioName(frame int) string { return fmt.Sprintf("frame_%03d.wav", frame) }

func (r *Runner) loop(ctx context.Context) error {
	grid := thermal.NewGrid(r.cfg.Rows, r.cfg.Cols)
	for r.running.Load() {
		if err := r.iterate(ctx, grid); err != nil {
			return err
		}
	}
	return nil
}

// iterate runs one frame through the pipeline. It returns an error only when
// the sensor fails; a stop request or an exhausted source ends the loop
// cleanly by clearing the running flag.
func (r *Runner) iterate(ctx context.Context, grid thermal.Grid) error {
	start := r.clock.Now()

	if err := r.src.Next(ctx, grid.Data); err != nil {
		r.running.Store(false)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			logf("sensor stream ended")
			return nil
		default:
			return fmt.Errorf("read frame %d: %w", r.frame, err)
		}
	}

	r.invokeCallback(grid)
	if !r.running.Load() {
		return nil
	}

	r.disp.Update(grid)

	fps := r.fps.Observe(r.clock.Since(start))

	mean := grid.Mean()
	heat := thermal.HeatRange(mean)
	if r.cfg.Verbose {
		logf("frame %d: mean %.2f C (%s), %.1f fps", r.frame, mean, heat, fps)
	}

	res := r.proc.Process(grid)

	if r.frame == 0 {
		r.thresholds = thermal.DeriveThresholds(r.proc.ActiveRanges())
		logf("thresholds: hot=%.1f cold=%.1f", r.thresholds.Hot, r.thresholds.Cold)
	}

	hot, cold := r.proc.DetectHotColdRegions(res.Cleaned, r.thresholds.Hot, r.thresholds.Cold)
	total := hot + cold

	r.disp.SetLabels(hot, cold, total)
	r.disp.Redraw()

	imageName := FrameImageName(r.frame)
	wavName := FrameAudioName(r.frame)
	wavPath := filepath.Join(r.dir, wavName)

	if r.cfg.SaveSound {
		r.enqueue(iowork.SaveAudio{Waveform: res.Waveform.Clone(), Path: wavPath})
	}
	// Best effort: the save above has usually not landed yet, in which case
	// this frame plays nothing.
	r.audio.Play(wavPath)

	if r.cfg.SaveFrames {
		if fig := r.disp.Figure(); fig != nil {
			r.enqueue(iowork.SaveImage{Figure: fig, Path: filepath.Join(r.dir, imageName)})
		}
	}

	cleanedPath := filepath.Join(r.CleanedDir(), imageName)
	thermalPath := filepath.Join(r.ThermalDir(), imageName)
	if r.cfg.SaveImages {
		title := fmt.Sprintf("Frame %d", r.frame)
		r.enqueue(iowork.SaveImage{Figure: display.NewGridFigure(grid.Clone(), title), Path: thermalPath})
		r.enqueue(iowork.SaveImage{Figure: display.NewGridFigure(res.Cleaned.Clone(), title+" (cleaned)"), Path: cleanedPath})
	}

	if len(r.sinks) > 0 {
		row := thermal.MetricsRow{
			FrameNumber:      r.frame,
			MeanTemperature:  mean,
			HeatRange:        heat,
			ImageFilename:    imageName,
			WavFilename:      wavName,
			CleanedImagePath: cleanedPath,
			ThermalImagePath: thermalPath,
			HotCount:         hot,
			ColdCount:        cold,
			TotalCount:       total,
		}
		if batch, full := r.buf.Add(row); full {
			r.enqueue(iowork.FlushRows{Rows: batch})
		}
	}

	r.frame++
	r.setStatus(func(s *Status) {
		s.Running = true
		s.Frames = r.frame
		s.FPS = fps
		s.MeanTemperature = mean
		s.HeatRange = heat
		s.Hot, s.Cold, s.Total = hot, cold, total
		th := r.thresholds
		s.Thresholds = &th
	})
	return nil
}

// enqueue hands a task to the worker. A full queue drops media tasks, which
// the worker already logs and counts.
func (r *Runner) enqueue(t iowork.Task) {
	err := r.worker.Enqueue(t)
	if err != nil && !errors.Is(err, iowork.ErrQueueFull) {
		logf("enqueue: %v", err)
	}
}

func (r *Runner) invokeCallback(grid thermal.Grid) {
	if r.callback == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.callbackErrors.Add(1)
			logf("callback panicked on frame %d: %v", r.frame, rec)
		}
	}()

	if err := r.callback(grid, r.RequestStop); err != nil {
		r.callbackErrors.Add(1)
		logf("callback error on frame %d: %v", r.frame, err)
	}
}
