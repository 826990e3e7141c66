package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/thermalsense/internal/processor"
	"github.com/banshee-data/thermalsense/internal/sensor"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &RunConfig{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultOutputRoot, cfg.GetOutputRoot())
	assert.Equal(t, "default", cfg.GetMode())
	assert.Equal(t, 44100, cfg.GetSampleRate())
	assert.True(t, cfg.GetSaveCSV())
	assert.True(t, cfg.GetSaveFrames())
	assert.True(t, cfg.GetSaveSound())
	assert.True(t, cfg.GetSaveImages())
	assert.True(t, cfg.GetDisplayEnabled())
	assert.Equal(t, 10, cfg.GetCSVFlushRows())
	assert.Equal(t, 30, cfg.GetFPSWindow())
	assert.Equal(t, 256, cfg.GetIOQueueSize())
	assert.Equal(t, time.Second, cfg.GetIOWaitTimeout())
	assert.Equal(t, 2*time.Second, cfg.GetIOJoinTimeout())
	assert.Equal(t, 24, cfg.GetFrameRows())
	assert.Equal(t, 32, cfg.GetFrameCols())
	assert.Empty(t, cfg.GetSQLitePath())
	assert.Equal(t, "aplay -q", cfg.GetAudioCommand())
	assert.Empty(t, cfg.GetSerialPort())
	assert.Equal(t, sensor.PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, cfg.GetSerial())
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, "run.json", `{
  "output_root": "/data/runs",
  "mode": "human",
  "save_sound": false,
  "csv_flush_rows": 25,
  "io_join_timeout": "5s",
  "serial_port": "/dev/ttyACM0",
  "serial": {"baud_rate": 460800, "parity": "even"},
  "custom_ranges": {"warm": [{"low": 30, "high": 40}, {"low": 50, "high": 60}]}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/runs", cfg.GetOutputRoot())
	assert.Equal(t, "human", cfg.GetMode())
	assert.False(t, cfg.GetSaveSound())
	assert.True(t, cfg.GetSaveCSV(), "unset fields keep defaults")
	assert.Equal(t, 25, cfg.GetCSVFlushRows())
	assert.Equal(t, 5*time.Second, cfg.GetIOJoinTimeout())
	assert.Equal(t, time.Second, cfg.GetIOWaitTimeout())
	assert.Equal(t, "/dev/ttyACM0", cfg.GetSerialPort())
	assert.Equal(t, sensor.PortOptions{BaudRate: 460800, DataBits: 8, StopBits: 1, Parity: "E"}, cfg.GetSerial())

	want := thermal.Ranges{"warm": {{Low: 30, High: 40}, {Low: 50, High: 60}}}
	if diff := cmp.Diff(want, cfg.CustomRanges); diff != "" {
		t.Errorf("custom ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "run.yaml", `{}`, ".json extension"},
		{"syntax", "run.json", `{"mode":`, "parse config JSON"},
		{"mode", "run.json", `{"mode": "lava"}`, "unknown mode"},
		{"empty range", "run.json", `{"custom_ranges": {"x": []}}`, "no bounds"},
		{"inverted range", "run.json", `{"custom_ranges": {"x": [{"low": 5, "high": 1}]}}`, "below low"},
		{"flush rows", "run.json", `{"csv_flush_rows": 0}`, "csv_flush_rows"},
		{"queue", "run.json", `{"io_queue_size": -1}`, "io_queue_size"},
		{"duration", "run.json", `{"io_wait_timeout": "soon"}`, "io_wait_timeout"},
		{"negative duration", "run.json", `{"io_join_timeout": "-1s"}`, "io_join_timeout"},
		{"serial", "run.json", `{"serial": {"stop_bits": 3}}`, "stop bits"},
		{"frame", "run.json", `{"frame_rows": 0}`, "frame_rows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAcceptsSingleEdgeRange(t *testing.T) {
	cfg, err := Load(writeConfig(t, "run.json", `{"custom_ranges": {"flat": [{"low": 5, "high": 5}]}}`))
	require.NoError(t, err)

	// The processor accepts the same table, and it falls back to the default
	// thresholds.
	proc, err := processor.New(processor.Config{CustomRanges: cfg.CustomRanges})
	require.NoError(t, err)
	assert.Equal(t, thermal.Thresholds{Hot: thermal.DefaultHotThreshold, Cold: thermal.DefaultColdThreshold},
		thermal.DeriveThresholds(proc.ActiveRanges()))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat")
}

func TestLoadTooLarge(t *testing.T) {
	body := `{"output_root": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err := Load(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestSetters(t *testing.T) {
	cfg := &RunConfig{}
	cfg.SetOutputRoot("/tmp/out")
	cfg.SetMode("industrial")
	cfg.SetSerialPort("/dev/ttyUSB0")
	cfg.SetSQLitePath("/tmp/out/t.db")
	cfg.SetDisplayEnabled(false)
	cfg.SetSaveSound(false)
	cfg.SetCSVFlushRows(3)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/tmp/out", cfg.GetOutputRoot())
	assert.Equal(t, "industrial", cfg.GetMode())
	assert.Equal(t, "/dev/ttyUSB0", cfg.GetSerialPort())
	assert.Equal(t, "/tmp/out/t.db", cfg.GetSQLitePath())
	assert.False(t, cfg.GetDisplayEnabled())
	assert.False(t, cfg.GetSaveSound())
	assert.Equal(t, 3, cfg.GetCSVFlushRows())
}
