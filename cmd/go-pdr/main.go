// go-pdr: pedestrian dead reckoning daemon
// Turns accelerometer and rotation-vector streams into an indoor position track
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-pdr/internal/config"
	"github.com/teslashibe/go-pdr/internal/feed"
	"github.com/teslashibe/go-pdr/internal/health"
	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/protocol"
	"github.com/teslashibe/go-pdr/internal/server"
	"github.com/teslashibe/go-pdr/internal/session"
	"github.com/teslashibe/go-pdr/internal/tracker"
	"github.com/teslashibe/go-pdr/internal/uplink"
	"github.com/teslashibe/go-pdr/internal/warehouse"
)

const uplinkInterval = 200 * time.Millisecond

var (
	version     = "0.3.0"
	configPath  = flag.String("config", "/etc/go-pdr/config.yaml", "config file path")
	showVersion = flag.Bool("version", false, "print version and exit")
	debug       = flag.Bool("debug", false, "enable debug logging")
	useMock     = flag.Bool("mock", false, "use the simulated walker as sensor source")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("go-pdr %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}

	if *debug {
		cfg.Logging.Level = "debug"
	}
	if *useMock {
		cfg.Source.Type = "mock"
	}

	logger := setupLogger(cfg.Logging)

	logger.Info("starting go-pdr",
		"version", version,
		"config", *configPath,
		"port", cfg.Server.Port,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Floor plan or plain rectangle
	var floor *warehouse.Map
	var bounds pdr.Bounds = cfg.Area.Bounds()
	if cfg.Map.Path != "" {
		floor, err = warehouse.LoadCSV(cfg.Map.Path)
		if err != nil {
			logger.Error("failed to load warehouse map", "path", cfg.Map.Path, "error", err)
			os.Exit(1)
		}
		bounds = floor
		logger.Info("warehouse map loaded",
			"path", cfg.Map.Path,
			"width", floor.Width,
			"height", floor.Height,
			"storage_locations", len(floor.StorageLocations()),
		)
	}

	source, err := openSource(cfg.Source, logger)
	if err != nil {
		logger.Error("failed to open sensor source", "type", cfg.Source.Type, "error", err)
		os.Exit(1)
	}

	proc := pdr.NewProcessor(cfg.PDR.Processor(), bounds)
	tr := tracker.NewTracker(proc, source, logger)

	recorder := session.NewRecorder()
	tr.SetObserver(recorder)

	var store session.Store
	if cfg.Session.Dir != "" {
		fs, err := session.NewFileStore(cfg.Session.Dir)
		if err != nil {
			logger.Warn("session storage disabled", "dir", cfg.Session.Dir, "error", err)
		} else {
			store = fs
		}
	}

	checker := health.NewChecker(version)
	checker.Register("source", func() (bool, string) {
		if source == nil {
			return true, "no source configured"
		}
		if !source.Healthy() {
			return false, source.Name() + " source unavailable"
		}
		return true, source.Name()
	}, true)

	if source != nil {
		go func() {
			if err := tr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("tracker error", "error", err)
			}
		}()
	}

	// Optional uplink to a remote collector
	var link *uplink.Client
	if cfg.Uplink.URL != "" {
		link = startUplink(ctx, cfg.Uplink, tr, logger)
		checker.Register("uplink", func() (bool, string) {
			if !link.IsConnected() {
				return false, "disconnected"
			}
			return true, "connected"
		}, false)
	}

	srv := server.New(cfg, server.Deps{
		Tracker:  tr,
		Recorder: recorder,
		Sessions: store,
		Health:   checker,
		Map:      floor,
	}, logger, version)

	go srv.WSHub().Run(ctx)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	printStartupBanner(cfg, version)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		cfg.Server.GracefulTimeout,
	)
	defer shutdownCancel()

	// Stop in order: server -> uplink -> tracker -> source
	logger.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}

	if link != nil {
		link.Close()
	}

	logger.Info("stopping tracker...")
	tr.Stop()
	cancel()

	if source != nil {
		source.Close()
	}

	logger.Info("go-pdr stopped")
}

// openSource builds the configured sensor feed. "none" returns a nil source;
// samples then arrive only through the HTTP API.
func openSource(cfg config.SourceConfig, logger *slog.Logger) (tracker.Source, error) {
	switch cfg.Type {
	case "mock":
		logger.Info("using simulated walker",
			"rate_hz", cfg.Mock.RateHz,
			"step_hz", cfg.Mock.StepHz,
			"heading", cfg.Mock.Heading,
		)
		return feed.NewWalkerSource(feed.WalkerConfig{
			RateHz:  cfg.Mock.RateHz,
			StepHz:  cfg.Mock.StepHz,
			Heading: cfg.Mock.Heading,
		}), nil

	case "mqtt":
		src := feed.NewMQTTSource(feed.MQTTConfig{
			Broker:        cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			AccelTopic:    cfg.MQTT.AccelTopic,
			RotationTopic: cfg.MQTT.RotationTopic,
			QoS:           cfg.MQTT.QoS,
		}, logger)
		if err := src.Connect(); err != nil {
			// paho keeps retrying in the background
			logger.Warn("mqtt broker not reachable yet", "broker", cfg.MQTT.Broker, "error", err)
		}
		return src, nil

	case "none":
		logger.Info("no sensor source, accepting samples over HTTP only")
		return nil, nil
	}

	return nil, fmt.Errorf("unknown source type %q", cfg.Type)
}

// startUplink connects to the collector and forwards tracker snapshots.
// Remote calibration and threshold commands are applied to the tracker.
func startUplink(ctx context.Context, cfg config.UplinkConfig, tr *tracker.Tracker, logger *slog.Logger) *uplink.Client {
	link := uplink.NewClient(uplink.Config{
		URL:              cfg.URL,
		ReconnectBackoff: cfg.ReconnectBackoff,
		MaxBackoff:       cfg.MaxBackoff,
		PingInterval:     cfg.PingInterval,
		WriteTimeout:     cfg.WriteTimeout,
	}, logger)

	link.OnCalibrate(func(cmd protocol.CalibrateCommand) {
		target, err := cmd.Target()
		if err != nil {
			logger.Warn("ignoring remote calibration", "error", err)
			return
		}
		kind, err := cmd.Kind()
		if err != nil {
			logger.Warn("ignoring remote calibration", "error", err)
			return
		}
		tr.Calibrate(target, kind)
	})

	link.OnConfigUpdate(func(update protocol.ConfigUpdate) {
		if _, err := tr.UpdateConfig(update.Apply(tr.Config())); err != nil {
			logger.Warn("ignoring remote config update", "error", err)
		}
	})

	// Resync the collector after every reconnect
	link.OnConnectionChange(func(up bool) {
		if up {
			link.SendSnapshot(tr.Latest())
		}
	})

	link.Connect(ctx)

	updates := tr.Subscribe()
	go func() {
		defer tr.Unsubscribe(updates)
		link.Forward(ctx, updates, uplinkInterval)
	}()

	return link
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func printStartupBanner(cfg *config.Config, version string) {
	fmt.Println()
	fmt.Println("🚶 go-pdr v" + version)
	fmt.Println("   Pedestrian dead reckoning daemon")
	fmt.Println()
	fmt.Printf("🚀 Running at http://0.0.0.0:%d\n", cfg.Server.Port)
	fmt.Println()
	fmt.Println("   Endpoints:")
	fmt.Println("   GET  /health              - Health check")
	fmt.Println("   GET  /api/pdr             - Current position snapshot")
	fmt.Println("   WS   /api/pdr/stream      - Real-time tracking stream")
	fmt.Println("   POST /api/pdr/start       - Start a tracking session")
	fmt.Println("   GET  /api/pdr/segments    - Path as editable segments")
	fmt.Println("   GET  /api/sessions        - Saved sessions")
	fmt.Println("   GET  /api/stats           - Tracker statistics")
	fmt.Println("   GET  /metrics             - Prometheus metrics")
	fmt.Println()
	fmt.Println("   Press Ctrl+C to stop")
	fmt.Println()
}
