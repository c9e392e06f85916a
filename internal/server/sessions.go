package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/session"
)

type saveSessionRequest struct {
	Name string `json:"name"`
}

// saveSessionHandler persists the current recording
func (s *Server) saveSessionHandler(c *fiber.Ctx) error {
	if s.deps.Sessions == nil || s.deps.Recorder == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "session storage not configured")
	}

	var req saveSessionRequest
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid session body: "+err.Error())
	}

	in := session.Snapshot{
		Name:     req.Name,
		Path:     s.tracker.Path(),
		Segments: s.tracker.Segments(),
		Final:    s.tracker.Latest(),
	}
	if s.deps.Map != nil {
		in.Bounds = s.deps.Map.Extents()
		in.Warehouse = true
	} else if area, ok := s.tracker.Bounds().(pdr.AreaBounds); ok {
		in.Bounds = area
	}

	rec := s.deps.Recorder.Build(in)
	if err := s.deps.Sessions.Save(rec); err != nil {
		s.logger.Error("failed to save session", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "failed to save session")
	}

	s.logger.Info("session saved",
		"id", rec.ID,
		"name", rec.Name,
		"samples", rec.SampleCount,
		"steps", rec.StepCount,
	)

	return c.Status(fiber.StatusCreated).JSON(rec.Metadata)
}

func (s *Server) listSessionsHandler(c *fiber.Ctx) error {
	if s.deps.Sessions == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "session storage not configured")
	}

	list, err := s.deps.Sessions.List()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"sessions": list,
		"count":    len(list),
	})
}

func (s *Server) getSessionHandler(c *fiber.Ctx) error {
	if s.deps.Sessions == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "session storage not configured")
	}

	rec, err := s.deps.Sessions.Load(c.Params("id"))
	if errors.Is(err, session.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "session not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(rec)
}

func (s *Server) deleteSessionHandler(c *fiber.Ctx) error {
	if s.deps.Sessions == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "session storage not configured")
	}

	err := s.deps.Sessions.Delete(c.Params("id"))
	if errors.Is(err, session.ErrNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "session not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.SendStatus(fiber.StatusNoContent)
}
