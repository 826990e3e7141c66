package thermal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridFrom(t *testing.T) {
	g, err := GridFrom(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 6.0, g.At(1, 2))
	assert.Equal(t, 2.0, g.At(0, 1))

	_, err = GridFrom(2, 3, []float64{1, 2})
	assert.Error(t, err)

	_, err = GridFrom(0, 3, nil)
	assert.Error(t, err)
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := Filled(2, 2, 5)
	c := g.Clone()
	g.Set(0, 0, 99)

	assert.Equal(t, 5.0, c.At(0, 0))
	assert.Equal(t, 99.0, g.At(0, 0))
}

func TestGrid_MeanAndBounds(t *testing.T) {
	g, err := GridFrom(2, 2, []float64{10, 20, 30, 40})
	require.NoError(t, err)

	assert.InDelta(t, 25.0, g.Mean(), 1e-9)
	lo, hi := g.Bounds()
	assert.Equal(t, 10.0, lo)
	assert.Equal(t, 40.0, hi)

	assert.Equal(t, 0.0, Grid{}.Mean())
}

func TestGrid_AtSetRowMajor(t *testing.T) {
	g := NewGrid(2, 3)
	g.Set(0, 2, 7)
	g.Set(1, 0, 9)
	if diff := cmp.Diff([]float64{0, 0, 7, 9, 0, 0}, g.Data); diff != "" {
		t.Errorf("row-major layout mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 9.0, g.At(1, 0))
}

func TestWaveform_Clone(t *testing.T) {
	w := Waveform{SampleRate: 8000, Samples: []float64{0.1, -0.2}}
	c := w.Clone()
	w.Samples[0] = 1

	assert.Equal(t, 8000, c.SampleRate)
	assert.Equal(t, []float64{0.1, -0.2}, c.Samples)
}

func TestMetricsRow_Record(t *testing.T) {
	row := MetricsRow{
		FrameNumber:      7,
		MeanTemperature:  21.5,
		HeatRange:        HeatNeutral,
		ImageFilename:    "frame_007.png",
		WavFilename:      "frame_007.wav",
		CleanedImagePath: "/run/cleaned/frame_007.png",
		ThermalImagePath: "/run/thermal/frame_007.png",
		HotCount:         2,
		ColdCount:        1,
		TotalCount:       3,
	}

	rec := row.Record()
	require.Len(t, rec, len(CSVHeader))
	assert.Equal(t, []string{
		"7", "21.5", "neutral", "frame_007.png", "frame_007.wav",
		"/run/cleaned/frame_007.png", "/run/thermal/frame_007.png", "2", "1", "3",
	}, rec)
}
