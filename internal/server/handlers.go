package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-pdr/internal/pathlog"
	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/protocol"
	"github.com/teslashibe/go-pdr/internal/tracker"
)

// positionRequest carries an optional position; omitted fields mean "use
// the default".
type positionRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (r positionRequest) set() bool { return r.X != nil && r.Y != nil }

func (r positionRequest) position() pdr.Position {
	return pdr.Position{X: *r.X, Y: *r.Y}
}

// decodeBody unmarshals a JSON body. An empty body leaves v untouched.
func decodeBody(c *fiber.Ctx, v interface{}) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// snapshotHandler returns the current tracking snapshot
func (s *Server) snapshotHandler(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Latest())
}

func (s *Server) pathHandler(c *fiber.Ctx) error {
	path := s.tracker.Path()
	return c.JSON(fiber.Map{
		"path":   path,
		"points": len(path),
	})
}

func (s *Server) segmentsHandler(c *fiber.Ctx) error {
	segs := s.tracker.Segments()
	return c.JSON(fiber.Map{
		"segments":       pathlog.Encode(segs),
		"total_distance": pathlog.TotalDistance(segs),
		"tolerance":      s.tracker.Config().HeadingTolerance,
	})
}

type segmentsRequest struct {
	Segments []pathlog.Record `json:"segments"`
}

// applySegmentsHandler rebuilds the path from edited segments
func (s *Server) applySegmentsHandler(c *fiber.Ctx) error {
	var req segmentsRequest
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid segments body: "+err.Error())
	}

	segs, err := pathlog.Decode(req.Segments)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	path, err := s.tracker.ApplySegments(segs)
	if errors.Is(err, tracker.ErrNotTracking) {
		return errorJSON(c, fiber.StatusConflict, "no active session")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"path":     path,
		"points":   len(path),
		"snapshot": s.tracker.Latest(),
	})
}

// startHandler begins a session at the given position, the map's START
// cell, or the current position, in that order.
func (s *Server) startHandler(c *fiber.Ctx) error {
	var req positionRequest
	if err := decodeBody(c, &req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid start body: "+err.Error())
	}

	initial := s.tracker.Latest().Position
	switch {
	case req.set():
		initial = req.position()
	case s.deps.Map != nil:
		initial = s.deps.Map.Start
	}

	return c.JSON(s.tracker.StartTracking(initial))
}

func (s *Server) pauseHandler(c *fiber.Ctx) error {
	return c.JSON(s.tracker.PauseTracking())
}

func (s *Server) resumeHandler(c *fiber.Ctx) error {
	return c.JSON(s.tracker.ResumeTracking())
}

func (s *Server) stopHandler(c *fiber.Ctx) error {
	return c.JSON(s.tracker.StopTracking())
}

func (s *Server) resetHandler(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Reset())
}

// positionHandler places the walker without starting a session
func (s *Server) positionHandler(c *fiber.Ctx) error {
	var req positionRequest
	if err := decodeBody(c, &req); err != nil || !req.set() {
		return errorJSON(c, fiber.StatusBadRequest, "x and y are required")
	}
	return c.JSON(s.tracker.SetInitialPosition(req.position()))
}

// samplesHandler accepts one acceleration sample or an array of them
func (s *Server) samplesHandler(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "empty body")
	}

	var samples []protocol.SampleData
	if body[0] == '[' {
		if err := json.Unmarshal(body, &samples); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid samples: "+err.Error())
		}
	} else {
		var one protocol.SampleData
		if err := json.Unmarshal(body, &one); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid sample: "+err.Error())
		}
		samples = append(samples, one)
	}

	snap := s.tracker.Latest()
	for _, d := range samples {
		ts := d.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		snap = s.tracker.Ingest(tracker.AccelSample(d.Vector(), ts))
	}

	return c.JSON(snap)
}

// rotationHandler accepts any decodable quaternion; a degenerate one only
// lowers the heading confidence.
func (s *Server) rotationHandler(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "rotation vector is required")
	}

	var d protocol.RotationData
	if err := json.Unmarshal(body, &d); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid rotation vector: "+err.Error())
	}

	s.tracker.Ingest(tracker.RotationSample(d.Quaternion(), 0))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) calibrateHandler(c *fiber.Ctx) error {
	var cmd protocol.CalibrateCommand
	if err := decodeBody(c, &cmd); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid calibration: "+err.Error())
	}

	target, err := cmd.Target()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}
	kind, err := cmd.Kind()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(s.tracker.Calibrate(target, kind))
}

// updateConfigHandler applies a partial threshold update
func (s *Server) updateConfigHandler(c *fiber.Ctx) error {
	var update protocol.ConfigUpdate
	if err := decodeBody(c, &update); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid config: "+err.Error())
	}

	snap, err := s.tracker.UpdateConfig(update.Apply(s.tracker.Config()))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(snap.Config)
}
