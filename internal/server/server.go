// Package server provides the HTTP and WebSocket surface for go-pdr
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-pdr/internal/config"
	"github.com/teslashibe/go-pdr/internal/health"
	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/session"
	"github.com/teslashibe/go-pdr/internal/tracker"
	"github.com/teslashibe/go-pdr/internal/warehouse"
)

// Deps are the components the server exposes. Only Tracker is required.
type Deps struct {
	Tracker  *tracker.Tracker
	Recorder *session.Recorder
	Sessions session.Store
	Health   *health.Checker
	Map      *warehouse.Map
}

// Server is the HTTP server for go-pdr
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	deps      Deps
	tracker   *tracker.Tracker
	logger    *slog.Logger
	wsHub     *WSHub
	startTime time.Time
	version   string
}

// New creates a new HTTP server
func New(cfg *config.Config, deps Deps, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.NewChecker(version)
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-pdr",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger))

	s := &Server{
		app:       app,
		cfg:       cfg,
		deps:      deps,
		tracker:   deps.Tracker,
		logger:    logger,
		wsHub:     NewWSHub(deps.Tracker, logger),
		startTime: time.Now(),
		version:   version,
	}

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler)

	api := s.app.Group("/api")
	api.Get("/config", s.configHandler)
	api.Get("/stats", s.statsHandler)
	api.Get("/map", s.mapHandler)

	// Tracking
	api.Get("/pdr", s.snapshotHandler)
	p := api.Group("/pdr")
	p.Get("/stream", s.wsHub.UpgradeHandler())
	p.Get("/path", s.pathHandler)
	p.Get("/segments", s.segmentsHandler)
	p.Put("/segments", s.applySegmentsHandler)
	p.Post("/start", s.startHandler)
	p.Post("/pause", s.pauseHandler)
	p.Post("/resume", s.resumeHandler)
	p.Post("/stop", s.stopHandler)
	p.Post("/reset", s.resetHandler)
	p.Post("/position", s.positionHandler)
	p.Post("/samples", s.samplesHandler)
	p.Post("/rotation", s.rotationHandler)
	p.Post("/calibrate", s.calibrateHandler)
	p.Put("/config", s.updateConfigHandler)

	// Saved sessions
	api.Post("/sessions", s.saveSessionHandler)
	api.Get("/sessions", s.listSessionsHandler)
	api.Get("/sessions/:id", s.getSessionHandler)
	api.Delete("/sessions/:id", s.deleteSessionHandler)
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// healthHandler returns service health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	status := s.deps.Health.GetStatus()

	code := fiber.StatusOK
	if status.Status == "unhealthy" {
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(status)
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"server": fiber.Map{
			"port":             s.cfg.Server.Port,
			"read_timeout_ms":  s.cfg.Server.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.Server.WriteTimeout.Milliseconds(),
		},
		"pdr":  s.tracker.Config(),
		"area": s.cfg.Area,
		"map": fiber.Map{
			"path":   s.cfg.Map.Path,
			"loaded": s.deps.Map != nil,
		},
		"source": fiber.Map{
			"type": s.cfg.Source.Type,
		},
		"uplink": fiber.Map{
			"enabled": s.cfg.Uplink.URL != "",
		},
		"sessions": s.deps.Sessions != nil,
	})
}

// statsHandler returns tracker statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	stats := s.tracker.Stats()
	stats.SubscriberCount += s.wsHub.ClientCount()
	return c.JSON(stats)
}

// mapHandler describes the loaded warehouse map
func (s *Server) mapHandler(c *fiber.Ctx) error {
	m := s.deps.Map
	if m == nil {
		return errorJSON(c, fiber.StatusNotFound, "no warehouse map loaded")
	}

	return c.JSON(fiber.Map{
		"width":             m.Width,
		"height":            m.Height,
		"start":             m.Start,
		"end":               m.End,
		"extents":           m.Extents(),
		"storage_locations": m.StorageLocations(),
		"aisle_cells":       len(m.AisleCells()),
		"cells":             m.Cells,
	})
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	stats := s.tracker.Stats()

	var b strings.Builder
	gauge := func(name, help string, v interface{}) {
		fmt.Fprintf(&b, "# HELP go_pdr_%s %s\n# TYPE go_pdr_%s gauge\ngo_pdr_%s %v\n\n", name, help, name, name, v)
	}
	counter := func(name, help string, v int64) {
		fmt.Fprintf(&b, "# HELP go_pdr_%s %s\n# TYPE go_pdr_%s counter\ngo_pdr_%s %d\n\n", name, help, name, name, v)
	}

	counter("samples_total", "Accelerometer samples processed", stats.SampleCount)
	counter("rotation_samples_total", "Rotation vectors received", stats.RotationCount)
	counter("source_errors_total", "Sample read errors", stats.ErrorCount)
	gauge("steps", "Steps in the current session", stats.StepCount)
	gauge("distance_meters", "Distance walked in the current session", stats.TotalDistance)
	gauge("mean_stride_meters", "Recent mean stride length", stats.MeanStride)
	gauge("heading_degrees", "Current heading, clockwise from north", stats.Heading)
	gauge("confidence", "Overall tracking confidence", stats.Confidence)
	gauge("tracking", "Tracking state (1=tracking, 0=idle or paused)", boolToInt(stats.State == pdr.StateTracking.String()))
	gauge("path_points", "Points in the recorded path", stats.PathPoints)
	gauge("source_healthy", "Sensor source health (1=healthy, 0=unhealthy)", boolToInt(stats.SourceHealthy))
	gauge("subscribers", "Snapshot subscribers", stats.SubscriberCount)
	gauge("websocket_clients", "Current WebSocket client count", s.wsHub.ClientCount())
	gauge("uptime_seconds", "Server uptime in seconds", int64(time.Since(s.startTime).Seconds()))

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(b.String())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"port", s.cfg.Server.Port,
	)

	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

// WSHub returns the WebSocket hub for external control
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber with timeout from context
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
