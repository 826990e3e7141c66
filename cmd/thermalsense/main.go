// Command thermalsense runs the thermal acquisition loop until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/thermalsense/internal/api"
	"github.com/banshee-data/thermalsense/internal/audio"
	"github.com/banshee-data/thermalsense/internal/config"
	"github.com/banshee-data/thermalsense/internal/display"
	"github.com/banshee-data/thermalsense/internal/processor"
	"github.com/banshee-data/thermalsense/internal/runner"
	"github.com/banshee-data/thermalsense/internal/sensor"
	"github.com/banshee-data/thermalsense/internal/store"
	"github.com/banshee-data/thermalsense/internal/version"
)

type options struct {
	configPath      string
	devMode         bool
	fixturePath     string
	fixtureInterval time.Duration
	port            string
	output          string
	mode            string
	listen          string
	dbPath          string
	noDisplay       bool
	noSound         bool
	verbose         bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to a JSON run configuration")
	flag.BoolVar(&o.devMode, "dev", false, "Replay frames from a fixture file instead of the serial sensor")
	flag.StringVar(&o.fixturePath, "fixture", "fixtures/thermal_frames.txt", "Fixture file used in dev mode")
	flag.DurationVar(&o.fixtureInterval, "fixture-interval", 250*time.Millisecond, "Delay between fixture frames")
	flag.StringVar(&o.port, "port", "", "Serial port of the sensor bridge (overrides config)")
	flag.StringVar(&o.output, "output", "", "Root directory for run output (overrides config)")
	flag.StringVar(&o.mode, "mode", "", "Range mode: default, human or industrial (overrides config)")
	flag.StringVar(&o.listen, "listen", "", "HTTP listen address for the live view, e.g. :8080 (disabled when empty)")
	flag.StringVar(&o.dbPath, "db", "", "SQLite database mirroring run metrics (overrides config)")
	flag.BoolVar(&o.noDisplay, "no-display", false, "Disable the live heat map")
	flag.BoolVar(&o.noSound, "no-sound", false, "Do not save soundscapes")
	flag.BoolVar(&o.verbose, "verbose", false, "Log every frame")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o); err != nil {
		log.Fatalf("thermalsense: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(o options) (*config.RunConfig, error) {
	cfg := &config.RunConfig{}
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	if o.output != "" {
		cfg.SetOutputRoot(o.output)
	}
	if o.mode != "" {
		cfg.SetMode(o.mode)
	}
	if o.port != "" {
		cfg.SetSerialPort(o.port)
	}
	if o.dbPath != "" {
		cfg.SetSQLitePath(o.dbPath)
	}
	if o.noDisplay {
		cfg.SetDisplayEnabled(false)
	}
	if o.noSound {
		cfg.SetSaveSound(false)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openSource(o options, cfg *config.RunConfig) (sensor.Source, error) {
	rows, cols := cfg.GetFrameRows(), cfg.GetFrameCols()
	if o.devMode {
		return sensor.LoadFixture(o.fixturePath, rows, cols, o.fixtureInterval)
	}
	port := cfg.GetSerialPort()
	if port == "" {
		return nil, errors.New("no serial port configured; pass -port or use -dev")
	}
	return sensor.OpenSerial(port, cfg.GetSerial(), rows, cols)
}

func runnerConfig(cfg *config.RunConfig, verbose bool) runner.Config {
	return runner.Config{
		OutputRoot:  cfg.GetOutputRoot(),
		Mode:        cfg.GetMode(),
		Rows:        cfg.GetFrameRows(),
		Cols:        cfg.GetFrameCols(),
		SaveCSV:     cfg.GetSaveCSV(),
		SaveFrames:  cfg.GetSaveFrames() && cfg.GetDisplayEnabled(),
		SaveSound:   cfg.GetSaveSound(),
		SaveImages:  cfg.GetSaveImages(),
		FlushRows:   cfg.GetCSVFlushRows(),
		FPSWindow:   cfg.GetFPSWindow(),
		QueueSize:   cfg.GetIOQueueSize(),
		WaitTimeout: cfg.GetIOWaitTimeout(),
		JoinTimeout: cfg.GetIOJoinTimeout(),
		Verbose:     verbose,
	}
}

func run(ctx context.Context, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	src, err := openSource(o, cfg)
	if err != nil {
		return err
	}

	proc, err := processor.New(processor.Config{
		Mode:         cfg.GetMode(),
		CustomRanges: cfg.CustomRanges,
		SampleRate:   cfg.GetSampleRate(),
	})
	if err != nil {
		src.Close()
		return err
	}

	deps := runner.Deps{Source: src, Processor: proc}

	var heatmap *display.HeatMap
	if cfg.GetDisplayEnabled() {
		heatmap = display.NewHeatMap("ThermalSense", cfg.GetFrameRows(), cfg.GetFrameCols())
		deps.Display = heatmap
	}

	if cfg.GetSaveSound() {
		player, err := audio.NewExecPlayer(cfg.GetAudioCommand())
		if err != nil {
			log.Printf("audio playback disabled: %v", err)
		} else {
			deps.Player = player
		}
	}

	var db *store.Store
	if path := cfg.GetSQLitePath(); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			src.Close()
			return fmt.Errorf("create database directory: %w", err)
		}
		if db, err = store.Open(path); err != nil {
			src.Close()
			return err
		}
		defer db.Close()
		if v, _, err := db.MigrateVersion(); err == nil {
			log.Printf("metrics mirrored to %s (schema v%d)", path, v)
		}
		deps.Store = db
	}

	r, err := runner.New(runnerConfig(cfg, o.verbose), deps)
	if err != nil {
		src.Close()
		return err
	}

	// The live view outlives the loop only until Start returns, which may
	// happen before ctx is cancelled when the sensor stream ends.
	httpCtx, stopHTTP := context.WithCancel(ctx)
	defer stopHTTP()

	var wg sync.WaitGroup
	if o.listen != "" {
		var frame api.FrameRenderer
		if heatmap != nil {
			frame = heatmap
		}
		var runs api.RunStore
		if db != nil {
			runs = db
		}
		srv := api.NewServer(r, frame, runs)

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(httpCtx, o.listen, api.LoggingMiddleware(srv.ServeMux()))
		}()
	}

	log.Printf("%s", version.String())
	err = r.Start(ctx)
	stopHTTP()
	wg.Wait()
	return err
}

// serveHTTP runs the live view until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("HTTP server routine stopped")
}
