// Package audio plays per-frame soundscapes without blocking the acquisition
// loop. At most one clip plays at a time: starting a new clip stops the
// previous one.
package audio

import (
	"os"
	"sync"

	"github.com/banshee-data/thermalsense/internal/monitoring"
)

var logf = monitoring.Component("audio")

// Playback is a handle on a clip that has started playing.
type Playback interface {
	IsPlaying() bool
	Stop() error
}

// Player starts playback of an audio file and returns immediately.
type Player interface {
	Play(path string) (Playback, error)
}

// Stats counts controller outcomes.
type Stats struct {
	Started   int `json:"started"`
	Preempted int `json:"preempted"`
	Missing   int `json:"missing"`
	Failed    int `json:"failed"`
}

// Controller owns the single in-flight playback handle.
type Controller struct {
	player Player
	exists func(path string) bool

	mu      sync.Mutex
	current Playback
	stats   Stats
}

// NewController returns a controller playing through player.
func NewController(player Player) *Controller {
	return &Controller{
		player: player,
		exists: fileExists,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Play stops any clip still playing and starts path if it exists on disk.
// A file that has not been written yet is silently skipped; playback errors
// are logged and never returned.
func (c *Controller) Play(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.preemptLocked()

	if c.player == nil {
		return
	}
	if !c.exists(path) {
		c.stats.Missing++
		return
	}

	pb, err := c.player.Play(path)
	if err != nil {
		c.stats.Failed++
		logf("error playing audio %s: %v", path, err)
		return
	}
	c.current = pb
	c.stats.Started++
}

func (c *Controller) preemptLocked() {
	if c.current == nil {
		return
	}
	if c.current.IsPlaying() {
		if err := c.current.Stop(); err != nil {
			logf("error stopping previous playback: %v", err)
		}
		c.stats.Preempted++
	}
	c.current = nil
}

// Stop stops any in-flight playback. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preemptLocked()
}

// Stats returns a copy of the outcome counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
