package thermal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameRate_Empty(t *testing.T) {
	f := NewFrameRate(0)
	assert.Equal(t, 0.0, f.FPS())
}

func TestFrameRate_WindowCap(t *testing.T) {
	f := NewFrameRate(30)
	for i := 0; i < 100; i++ {
		f.Observe(time.Second)
	}
	// Thirty fast iterations push every slow one out of the window.
	for i := 0; i < 30; i++ {
		f.Observe(250 * time.Millisecond)
	}
	assert.InDelta(t, 4.0, f.FPS(), 1e-9)
}

func TestFrameRate_SlidesOldSamplesOut(t *testing.T) {
	f := NewFrameRate(2)
	f.Observe(time.Second)
	f.Observe(time.Second)
	assert.InDelta(t, 1.0, f.FPS(), 1e-9)

	f.Observe(500 * time.Millisecond)
	f.Observe(500 * time.Millisecond)
	assert.InDelta(t, 2.0, f.FPS(), 1e-9)
}
