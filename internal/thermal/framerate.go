package thermal

import "time"

// DefaultFrameRateWindow is the number of iteration durations kept for the
// instantaneous frame-rate estimate.
const DefaultFrameRateWindow = 30

// FrameRate keeps a sliding window of iteration durations. It is not safe for
// concurrent use; the acquisition loop owns it.
type FrameRate struct {
	window  int
	samples []time.Duration
	total   time.Duration
}

// NewFrameRate returns a FrameRate keeping at most window samples.
func NewFrameRate(window int) *FrameRate {
	if window <= 0 {
		window = DefaultFrameRateWindow
	}
	return &FrameRate{window: window, samples: make([]time.Duration, 0, window)}
}

// Observe records one iteration duration and returns the updated rate.
func (f *FrameRate) Observe(d time.Duration) float64 {
	if len(f.samples) == f.window {
		f.total -= f.samples[0]
		f.samples = append(f.samples[:0], f.samples[1:]...)
	}
	f.samples = append(f.samples, d)
	f.total += d
	return f.FPS()
}

// FPS returns samples per second over the current window, or 0 before any
// non-zero duration has been observed.
func (f *FrameRate) FPS() float64 {
	if f.total <= 0 {
		return 0
	}
	return float64(len(f.samples)) / f.total.Seconds()
}
