// Package config loads the JSON run configuration for thermalsense.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/thermalsense/internal/audio"
	"github.com/banshee-data/thermalsense/internal/csvlog"
	"github.com/banshee-data/thermalsense/internal/iowork"
	"github.com/banshee-data/thermalsense/internal/processor"
	"github.com/banshee-data/thermalsense/internal/sensor"
	"github.com/banshee-data/thermalsense/internal/thermal"
)

// DefaultOutputRoot is where run directories are created when the config
// does not name one.
const DefaultOutputRoot = "output"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// RunConfig is the on-disk run configuration. Every field is optional; the
// Get* accessors supply defaults for anything left unset, so partial files
// are safe. Command-line flags are applied on top via the Set* helpers.
type RunConfig struct {
	OutputRoot   *string        `json:"output_root,omitempty"`
	Mode         *string        `json:"mode,omitempty"`
	CustomRanges thermal.Ranges `json:"custom_ranges,omitempty"`
	SampleRate   *int           `json:"sample_rate,omitempty"`

	SaveCSV        *bool `json:"save_csv,omitempty"`
	SaveFrames     *bool `json:"save_frames,omitempty"`
	SaveSound      *bool `json:"save_sound,omitempty"`
	SaveImages     *bool `json:"save_images,omitempty"`
	DisplayEnabled *bool `json:"display_enabled,omitempty"`

	CSVFlushRows *int `json:"csv_flush_rows,omitempty"`
	FPSWindow    *int `json:"fps_window,omitempty"`

	IOQueueSize   *int    `json:"io_queue_size,omitempty"`
	IOWaitTimeout *string `json:"io_wait_timeout,omitempty"` // duration string like "1s"
	IOJoinTimeout *string `json:"io_join_timeout,omitempty"` // duration string like "2s"

	FrameRows *int `json:"frame_rows,omitempty"`
	FrameCols *int `json:"frame_cols,omitempty"`

	SQLitePath   *string `json:"sqlite_path,omitempty"`
	AudioCommand *string `json:"audio_command,omitempty"`

	SerialPort *string             `json:"serial_port,omitempty"`
	Serial     *sensor.PortOptions `json:"serial,omitempty"`
}

func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// Load reads a RunConfig from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *RunConfig) Validate() error {
	if c.Mode != nil {
		if _, err := processor.RangesForMode(*c.Mode); err != nil {
			return err
		}
	}

	if err := c.CustomRanges.Validate(); err != nil {
		return fmt.Errorf("custom_ranges: %w", err)
	}

	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", *c.SampleRate)
	}
	if c.CSVFlushRows != nil && *c.CSVFlushRows <= 0 {
		return fmt.Errorf("csv_flush_rows must be positive, got %d", *c.CSVFlushRows)
	}
	if c.FPSWindow != nil && *c.FPSWindow <= 0 {
		return fmt.Errorf("fps_window must be positive, got %d", *c.FPSWindow)
	}
	if c.IOQueueSize != nil && *c.IOQueueSize <= 0 {
		return fmt.Errorf("io_queue_size must be positive, got %d", *c.IOQueueSize)
	}
	if c.FrameRows != nil && *c.FrameRows <= 0 {
		return fmt.Errorf("frame_rows must be positive, got %d", *c.FrameRows)
	}
	if c.FrameCols != nil && *c.FrameCols <= 0 {
		return fmt.Errorf("frame_cols must be positive, got %d", *c.FrameCols)
	}

	for name, v := range map[string]*string{
		"io_wait_timeout": c.IOWaitTimeout,
		"io_join_timeout": c.IOJoinTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

// GetOutputRoot returns the output_root value or the default.
func (c *RunConfig) GetOutputRoot() string {
	if c.OutputRoot == nil || *c.OutputRoot == "" {
		return DefaultOutputRoot
	}
	return *c.OutputRoot
}

// GetMode returns the mode value or the default.
func (c *RunConfig) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return processor.ModeDefault
	}
	return *c.Mode
}

// GetSampleRate returns the sample_rate value or the default.
func (c *RunConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return processor.DefaultSampleRate
	}
	return *c.SampleRate
}

func getBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetSaveCSV returns the save_csv value or the default (true).
func (c *RunConfig) GetSaveCSV() bool { return getBool(c.SaveCSV, true) }

// GetSaveFrames returns the save_frames value or the default (true).
func (c *RunConfig) GetSaveFrames() bool { return getBool(c.SaveFrames, true) }

// GetSaveSound returns the save_sound value or the default (true).
func (c *RunConfig) GetSaveSound() bool { return getBool(c.SaveSound, true) }

// GetSaveImages returns the save_images value or the default (true).
func (c *RunConfig) GetSaveImages() bool { return getBool(c.SaveImages, true) }

// GetDisplayEnabled returns the display_enabled value or the default (true).
func (c *RunConfig) GetDisplayEnabled() bool { return getBool(c.DisplayEnabled, true) }

// GetCSVFlushRows returns the csv_flush_rows value or the default.
func (c *RunConfig) GetCSVFlushRows() int {
	if c.CSVFlushRows == nil {
		return csvlog.DefaultFlushRows
	}
	return *c.CSVFlushRows
}

// GetFPSWindow returns the fps_window value or the default.
func (c *RunConfig) GetFPSWindow() int {
	if c.FPSWindow == nil {
		return thermal.DefaultFrameRateWindow
	}
	return *c.FPSWindow
}

// GetIOQueueSize returns the io_queue_size value or the default.
func (c *RunConfig) GetIOQueueSize() int {
	if c.IOQueueSize == nil {
		return iowork.DefaultQueueSize
	}
	return *c.IOQueueSize
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetIOWaitTimeout parses and returns io_wait_timeout.
func (c *RunConfig) GetIOWaitTimeout() time.Duration {
	return getDuration(c.IOWaitTimeout, iowork.DefaultWaitTimeout)
}

// GetIOJoinTimeout parses and returns io_join_timeout.
func (c *RunConfig) GetIOJoinTimeout() time.Duration {
	return getDuration(c.IOJoinTimeout, iowork.DefaultJoinTimeout)
}

// GetFrameRows returns the frame_rows value or the sensor default.
func (c *RunConfig) GetFrameRows() int {
	if c.FrameRows == nil {
		return thermal.DefaultRows
	}
	return *c.FrameRows
}

// GetFrameCols returns the frame_cols value or the sensor default.
func (c *RunConfig) GetFrameCols() int {
	if c.FrameCols == nil {
		return thermal.DefaultCols
	}
	return *c.FrameCols
}

// GetSQLitePath returns the sqlite_path value. Empty disables the store.
func (c *RunConfig) GetSQLitePath() string {
	if c.SQLitePath == nil {
		return ""
	}
	return *c.SQLitePath
}

// GetAudioCommand returns the audio_command value or the default.
func (c *RunConfig) GetAudioCommand() string {
	if c.AudioCommand == nil || *c.AudioCommand == "" {
		return audio.DefaultCommand
	}
	return *c.AudioCommand
}

// GetSerialPort returns the serial_port value. Empty means no hardware.
func (c *RunConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetSerial returns the normalised serial options.
func (c *RunConfig) GetSerial() sensor.PortOptions {
	var opts sensor.PortOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	if n, err := opts.Normalise(); err == nil {
		return n
	}
	return opts
}

// SetOutputRoot overrides output_root.
func (c *RunConfig) SetOutputRoot(v string) { c.OutputRoot = ptrString(v) }

// SetMode overrides mode.
func (c *RunConfig) SetMode(v string) { c.Mode = ptrString(v) }

// SetSerialPort overrides serial_port.
func (c *RunConfig) SetSerialPort(v string) { c.SerialPort = ptrString(v) }

// SetSQLitePath overrides sqlite_path.
func (c *RunConfig) SetSQLitePath(v string) { c.SQLitePath = ptrString(v) }

// SetDisplayEnabled overrides display_enabled.
func (c *RunConfig) SetDisplayEnabled(v bool) { c.DisplayEnabled = ptrBool(v) }

// SetSaveSound overrides save_sound.
func (c *RunConfig) SetSaveSound(v bool) { c.SaveSound = ptrBool(v) }

// SetCSVFlushRows overrides csv_flush_rows.
func (c *RunConfig) SetCSVFlushRows(v int) { c.CSVFlushRows = ptrInt(v) }
