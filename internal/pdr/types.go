// Package pdr implements pedestrian dead reckoning: step detection, stride
// estimation, heading extraction and bounded position integration.
package pdr

import (
	"fmt"
	"math"
)

// Position is a planar coordinate in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y}
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Position) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// HeadingData is the current orientation estimate.
type HeadingData struct {
	Heading    float64 `json:"heading"`    // degrees clockwise, [0,360)
	Confidence float64 `json:"confidence"` // [0,1]
}

// StepData describes one detected step.
type StepData struct {
	Timestamp  int64   `json:"timestamp"` // ms
	Magnitude  float64 `json:"magnitude"`
	Confidence float64 `json:"confidence"`
}

// StrideData is the estimated length of the most recent step.
type StrideData struct {
	Length     float64 `json:"length"`
	Confidence float64 `json:"confidence"`
}

// Config holds the tunable thresholds. It is treated as an immutable value
// and replaced wholesale via Processor.UpdateConfig.
type Config struct {
	StepThreshold       float64 `json:"step_threshold"`        // m/s²
	StepCooldownMs      int64   `json:"step_cooldown_ms"`      // refractory period
	DefaultStrideLength float64 `json:"default_stride_length"` // meters
	HeadingTolerance    float64 `json:"heading_tolerance"`     // degrees
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		StepThreshold:       12.0,
		StepCooldownMs:      450,
		DefaultStrideLength: 0.7,
		HeadingTolerance:    30,
	}
}

// Validate reports the first threshold that cannot drive the pipeline.
func (c Config) Validate() error {
	switch {
	case c.StepThreshold <= 0:
		return fmt.Errorf("step_threshold must be positive, got %g", c.StepThreshold)
	case c.StepCooldownMs < 0:
		return fmt.Errorf("step_cooldown_ms must not be negative, got %d", c.StepCooldownMs)
	case c.DefaultStrideLength <= 0:
		return fmt.Errorf("default_stride_length must be positive, got %g", c.DefaultStrideLength)
	case c.HeadingTolerance <= 0 || c.HeadingTolerance > 180:
		return fmt.Errorf("heading_tolerance must be in (0, 180], got %g", c.HeadingTolerance)
	}
	return nil
}

// State is the tracking state of a Processor.
type State int

const (
	StateIdle State = iota
	StateTracking
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name. Unknown names decode as idle.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "tracking":
		*s = StateTracking
	case "paused":
		*s = StatePaused
	default:
		*s = StateIdle
	}
	return nil
}

// Snapshot is the processor output after every sample.
type Snapshot struct {
	Position      Position    `json:"position"`
	StepCount     int         `json:"step_count"`
	TotalDistance float64     `json:"total_distance"`
	Heading       HeadingData `json:"heading"`
	LastStep      *StepData   `json:"last_step,omitempty"`
	Tracking      bool        `json:"tracking"`
	State         State       `json:"state"`
	Confidence    float64     `json:"confidence"`
	Config        Config      `json:"config"`
}

// Clamp clamps a value to [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// NormalizeHeading maps any angle in degrees into [0,360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}

// WrapDelta maps a heading difference into (-180,180].
func WrapDelta(deg float64) float64 {
	d := math.Mod(deg, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

// Displacement returns the planar step vector for a stride at the given
// heading. Heading 0 points "up" (negative y) and grows clockwise.
func Displacement(length, headingDeg float64) Position {
	rad := headingDeg * math.Pi / 180
	return Position{
		X: length * math.Sin(rad),
		Y: -length * math.Cos(rad),
	}
}
