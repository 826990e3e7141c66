package audio

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// DefaultCommand plays a WAV file through ALSA.
const DefaultCommand = "aplay -q"

// ExecPlayer plays files by running an external command with the file path
// appended as the last argument.
type ExecPlayer struct {
	name string
	args []string
}

// NewExecPlayer parses command ("aplay -q", "afplay", ...). An empty command
// selects DefaultCommand.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = strings.Fields(DefaultCommand)
	}
	name, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("audio player %q not found: %w", fields[0], err)
	}
	return &ExecPlayer{name: name, args: fields[1:]}, nil
}

// Play starts the player process and returns without waiting for it.
func (p *ExecPlayer) Play(path string) (Playback, error) {
	args := append(append([]string(nil), p.args...), path)
	cmd := exec.Command(p.name, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", p.name, err)
	}

	pb := &processPlayback{cmd: cmd, done: make(chan struct{})}
	go func() {
		pb.err = cmd.Wait()
		close(pb.done)
	}()
	return pb, nil
}

type processPlayback struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error

	stopOnce sync.Once
	stopErr  error
}

func (p *processPlayback) IsPlaying() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop kills the player process and waits for it to be reaped.
func (p *processPlayback) Stop() error {
	p.stopOnce.Do(func() {
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.stopErr = err
		}
		<-p.done
	})
	return p.stopErr
}
