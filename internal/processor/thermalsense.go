package processor

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

// Sensor readings outside this window are treated as dead pixels.
const (
	minValidReading = -40.0
	maxValidReading = 300.0
)

// Soundscape tuning: one partial per grid column spread over three octaves
// above baseFrequency, with a short fade to avoid clicks between frames.
const (
	baseFrequency = 220.0
	octaveSpan    = 3.0
	peakAmplitude = 0.9
	fadeDuration  = 0.01
)

// ThermalSense is the default Processor. It is safe for concurrent use: the
// loop calls Process while the I/O worker calls SaveAudio.
type ThermalSense struct {
	ranges         thermal.Ranges
	sampleRate     int
	samples        int
	minRegionCells int
	lo, hi         float64
}

// New validates cfg and returns a ThermalSense.
func New(cfg Config) (*ThermalSense, error) {
	var ranges thermal.Ranges
	if len(cfg.CustomRanges) > 0 {
		if err := cfg.CustomRanges.Validate(); err != nil {
			return nil, err
		}
		ranges = copyRanges(cfg.CustomRanges)
	} else {
		mode := cfg.Mode
		if mode == "" {
			mode = ModeDefault
		}
		var err error
		if ranges, err = RangesForMode(mode); err != nil {
			return nil, err
		}
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	duration := cfg.SoundDuration
	if duration <= 0 {
		duration = DefaultSoundDuration
	}
	minCells := cfg.MinRegionCells
	if minCells <= 0 {
		minCells = 1
	}

	edges := ranges.Edges()
	lo, hi := 0.0, 60.0
	if len(edges) >= 2 {
		lo, hi = edges[0], edges[len(edges)-1]
	}

	return &ThermalSense{
		ranges:         ranges,
		sampleRate:     sampleRate,
		samples:        int(float64(sampleRate) * duration.Seconds()),
		minRegionCells: minCells,
		lo:             lo,
		hi:             hi,
	}, nil
}

// ActiveRanges returns a copy of the active range table.
func (p *ThermalSense) ActiveRanges() thermal.Ranges {
	return copyRanges(p.ranges)
}

// Process cleans frame and synthesises its soundscape.
func (p *ThermalSense) Process(frame thermal.Grid) Result {
	cleaned := Clean(frame)
	return Result{
		Cleaned:  cleaned,
		Waveform: p.soundscape(cleaned),
	}
}

// Clean repairs dead pixels and applies a 3×3 median filter. The input is not
// modified.
func Clean(frame thermal.Grid) thermal.Grid {
	repaired := frame.Clone()
	valid := func(v float64) bool {
		return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= minValidReading && v <= maxValidReading
	}

	var sum float64
	var n int
	for _, v := range frame.Data {
		if valid(v) {
			sum += v
			n++
		}
	}
	fallback := 0.0
	if n > 0 {
		fallback = sum / float64(n)
	}

	for r := 0; r < frame.Rows; r++ {
		for c := 0; c < frame.Cols; c++ {
			if valid(frame.At(r, c)) {
				continue
			}
			var s float64
			var k int
			forNeighbours(frame, r, c, func(v float64) {
				if valid(v) {
					s += v
					k++
				}
			})
			if k > 0 {
				repaired.Set(r, c, s/float64(k))
			} else {
				repaired.Set(r, c, fallback)
			}
		}
	}

	out := thermal.NewGrid(frame.Rows, frame.Cols)
	window := make([]float64, 0, 9)
	for r := 0; r < frame.Rows; r++ {
		for c := 0; c < frame.Cols; c++ {
			window = window[:0]
			window = append(window, repaired.At(r, c))
			forNeighbours(repaired, r, c, func(v float64) {
				window = append(window, v)
			})
			sort.Float64s(window)
			mid := len(window) / 2
			if len(window)%2 == 1 {
				out.Set(r, c, window[mid])
			} else {
				out.Set(r, c, (window[mid-1]+window[mid])/2)
			}
		}
	}
	return out
}

// forNeighbours calls fn for each in-bounds cell of the 3×3 neighbourhood of
// (r, c), excluding the centre.
func forNeighbours(g thermal.Grid, r, c int, fn func(v float64)) {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			rr, cc := r+dr, c+dc
			if rr < 0 || rr >= g.Rows || cc < 0 || cc >= g.Cols {
				continue
			}
			fn(g.At(rr, cc))
		}
	}
}

// soundscape maps each column's mean temperature, normalised over the active
// ranges, to the loudness of one partial.
func (p *ThermalSense) soundscape(g thermal.Grid) thermal.Waveform {
	w := thermal.Waveform{SampleRate: p.sampleRate, Samples: make([]float64, p.samples)}
	if g.Cols == 0 || g.Rows == 0 || p.samples == 0 {
		return w
	}

	span := p.hi - p.lo
	if span <= 0 {
		span = 1
	}
	amps := make([]float64, g.Cols)
	freqs := make([]float64, g.Cols)
	for c := 0; c < g.Cols; c++ {
		var sum float64
		for r := 0; r < g.Rows; r++ {
			sum += g.At(r, c)
		}
		a := (sum/float64(g.Rows) - p.lo) / span
		amps[c] = math.Max(0, math.Min(1, a))
		freqs[c] = baseFrequency * math.Pow(2, octaveSpan*float64(c)/float64(g.Cols))
	}

	rate := float64(p.sampleRate)
	for i := range w.Samples {
		t := float64(i) / rate
		var s float64
		for c, a := range amps {
			if a == 0 {
				continue
			}
			s += a * math.Sin(2*math.Pi*freqs[c]*t)
		}
		w.Samples[i] = s
	}

	if peak := floats.Norm(w.Samples, math.Inf(1)); peak > 0 {
		floats.Scale(peakAmplitude/peak, w.Samples)
	}

	fade := int(fadeDuration * rate)
	if fade*2 > len(w.Samples) {
		fade = len(w.Samples) / 2
	}
	for i := 0; i < fade; i++ {
		k := float64(i) / float64(fade)
		w.Samples[i] *= k
		w.Samples[len(w.Samples)-1-i] *= k
	}
	return w
}

// DetectHotColdRegions counts 4-connected regions strictly above hot and
// strictly below cold.
func (p *ThermalSense) DetectHotColdRegions(cleaned thermal.Grid, hot, cold float64) (int, int) {
	hotCount := CountRegions(cleaned, func(v float64) bool { return v > hot }, p.minRegionCells)
	coldCount := CountRegions(cleaned, func(v float64) bool { return v < cold }, p.minRegionCells)
	return hotCount, coldCount
}

// CountRegions counts 4-connected components of cells matching in with at
// least minCells members.
func CountRegions(g thermal.Grid, in func(v float64) bool, minCells int) int {
	seen := make([]bool, len(g.Data))
	stack := make([]int, 0, len(g.Data))
	count := 0

	for start := range g.Data {
		if seen[start] || !in(g.Data[start]) {
			continue
		}
		size := 0
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++

			r, c := idx/g.Cols, idx%g.Cols
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				rr, cc := r+d[0], c+d[1]
				if rr < 0 || rr >= g.Rows || cc < 0 || cc >= g.Cols {
					continue
				}
				n := rr*g.Cols + cc
				if !seen[n] && in(g.Data[n]) {
					seen[n] = true
					stack = append(stack, n)
				}
			}
		}
		if size >= minCells {
			count++
		}
	}
	return count
}

// SaveAudio writes w to path as 16-bit mono PCM WAV.
func (p *ThermalSense) SaveAudio(w thermal.Waveform, path string) error {
	rate := w.SampleRate
	if rate <= 0 {
		rate = p.sampleRate
	}
	return WriteWAV(path, w.Samples, rate)
}

// WriteWAV encodes samples in [-1, 1] as 16-bit mono PCM. The file is written
// under a temporary name and renamed into place so a concurrent reader never
// sees a partial file.
func WriteWAV(path string, samples []float64, sampleRate int) (err error) {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * math.MaxInt16))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err = enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("failed to finalise wav: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move wav into place: %w", err)
	}
	return nil
}
