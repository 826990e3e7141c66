package processor

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/thermalsense/internal/thermal"
)

func newTestProcessor(t *testing.T, cfg Config) *ThermalSense {
	t.Helper()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 8000
	}
	if cfg.SoundDuration == 0 {
		cfg.SoundDuration = 50 * time.Millisecond
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestNew_Modes(t *testing.T) {
	assert.Equal(t, []string{ModeDefault, ModeHuman, ModeIndustrial}, Modes())

	p := newTestProcessor(t, Config{})
	assert.Equal(t, thermal.Thresholds{Hot: 40, Cold: 10}, thermal.DeriveThresholds(p.ActiveRanges()))

	_, err := New(Config{Mode: "lava"})
	assert.Error(t, err)

	p = newTestProcessor(t, Config{Mode: "HUMAN"})
	assert.Contains(t, p.ActiveRanges(), "fever")
}

func TestNew_CustomRangesOverrideMode(t *testing.T) {
	custom := thermal.Ranges{"a": {{Low: 5, High: 15}}, "b": {{Low: 15, High: 50}}}
	p := newTestProcessor(t, Config{Mode: ModeIndustrial, CustomRanges: custom})
	assert.Equal(t, custom, p.ActiveRanges())

	_, err := New(Config{CustomRanges: thermal.Ranges{"bad": {{Low: 10, High: 5}}}})
	assert.Error(t, err)
}

func TestActiveRanges_ReturnsCopy(t *testing.T) {
	p := newTestProcessor(t, Config{})
	r := p.ActiveRanges()
	r["hot"][0].High = 1000
	delete(r, "cold")

	again := p.ActiveRanges()
	assert.Equal(t, 70.0, again["hot"][0].High)
	assert.Contains(t, again, "cold")
}

func TestClean_RepairsDeadPixels(t *testing.T) {
	g := thermal.Filled(3, 3, 20)
	g.Set(1, 1, math.NaN())
	g.Set(0, 0, 999)

	cleaned := Clean(g)
	for _, v := range cleaned.Data {
		assert.InDelta(t, 20.0, v, 1e-9)
	}
	assert.True(t, math.IsNaN(g.At(1, 1)), "input must not be modified")
}

func TestClean_MedianRemovesSpike(t *testing.T) {
	g := thermal.Filled(5, 5, 22)
	g.Set(2, 2, 60)

	cleaned := Clean(g)
	assert.InDelta(t, 22.0, cleaned.At(2, 2), 1e-9)
}

func TestCountRegions(t *testing.T) {
	g, err := thermal.GridFrom(4, 5, []float64{
		50, 50, 0, 0, 50,
		0, 0, 0, 0, 50,
		0, 50, 0, 0, 0,
		0, 0, 0, 50, 50,
	})
	require.NoError(t, err)

	hot := func(v float64) bool { return v > 40 }
	assert.Equal(t, 4, CountRegions(g, hot, 1))
	assert.Equal(t, 3, CountRegions(g, hot, 2))
	assert.Equal(t, 1, CountRegions(g, func(v float64) bool { return v < 10 }, 1))
}

func TestDetectHotColdRegions(t *testing.T) {
	p := newTestProcessor(t, Config{})

	g := thermal.Filled(6, 6, 25)
	g.Set(0, 0, 50)
	g.Set(0, 1, 50)
	g.Set(5, 5, 50)
	g.Set(3, 3, 5)

	hot, cold := p.DetectHotColdRegions(g, 40, 10)
	assert.Equal(t, 2, hot)
	assert.Equal(t, 1, cold)

	hot, cold = p.DetectHotColdRegions(thermal.Filled(6, 6, 25), 40, 10)
	assert.Zero(t, hot)
	assert.Zero(t, cold)
}

func TestProcess_Soundscape(t *testing.T) {
	p := newTestProcessor(t, Config{SampleRate: 8000, SoundDuration: 100 * time.Millisecond})

	res := p.Process(thermal.Filled(4, 8, 35))
	assert.Equal(t, 8000, res.Waveform.SampleRate)
	require.Len(t, res.Waveform.Samples, 800)
	assert.Equal(t, 0.0, res.Waveform.Samples[0], "fade-in starts at silence")

	var peak float64
	for _, s := range res.Waveform.Samples {
		peak = math.Max(peak, math.Abs(s))
	}
	assert.LessOrEqual(t, peak, peakAmplitude+1e-9)
	assert.Greater(t, peak, 0.1)
	assert.Equal(t, 4, res.Cleaned.Rows)
	assert.Equal(t, 8, res.Cleaned.Cols)
}

func TestProcess_ColdFrameIsSilent(t *testing.T) {
	p := newTestProcessor(t, Config{})
	res := p.Process(thermal.Filled(4, 8, -10))
	for _, s := range res.Waveform.Samples {
		require.Equal(t, 0.0, s)
	}
}

func TestSaveAudio_WritesDecodableWAV(t *testing.T) {
	dir := t.TempDir()
	p := newTestProcessor(t, Config{SampleRate: 8000, SoundDuration: 50 * time.Millisecond})

	res := p.Process(thermal.Filled(4, 8, 30))
	path := filepath.Join(dir, "frame_000.wav")
	require.NoError(t, p.SaveAudio(res.Waveform, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	d := wav.NewDecoder(f)
	require.True(t, d.IsValidFile())
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, 8000, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Len(t, buf.Data, len(res.Waveform.Samples))

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err), "temporary file must be renamed away")
}

func TestSaveAudio_BadDirectory(t *testing.T) {
	p := newTestProcessor(t, Config{})
	err := p.SaveAudio(thermal.Waveform{SampleRate: 8000, Samples: []float64{0}}, filepath.Join(t.TempDir(), "missing", "x.wav"))
	assert.Error(t, err)
}
