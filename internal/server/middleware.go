package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// quietPaths are polled or fed at high rate and not logged.
var quietPaths = map[string]bool{
	"/metrics":          true,
	"/health":           true,
	"/api/pdr":          true,
	"/api/pdr/samples":  true,
	"/api/pdr/rotation": true,
	"/api/pdr/stream":   true,
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		path := c.Path()
		status := c.Response().StatusCode()
		if quietPaths[path] && status < fiber.StatusBadRequest {
			return err
		}

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelWarn
		}

		logger.Log(c.UserContext(), level, "http request",
			"method", c.Method(),
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)

		return err
	}
}
