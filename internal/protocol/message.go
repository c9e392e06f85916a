// Package protocol defines the JSON messages exchanged over the sensor feed,
// the local stream and the uplink.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-pdr/internal/pdr"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Sensor → engine
	TypeSample   MessageType = "sample"   // Linear acceleration
	TypeRotation MessageType = "rotation" // Rotation-vector quaternion

	// Engine → clients
	TypeSnapshot MessageType = "snapshot" // Tracking snapshot
	TypeState    MessageType = "state"    // Tracking state change
	TypeStats    MessageType = "stats"    // Tracker statistics
	TypeError    MessageType = "error"    // Rejected command

	// Clients → engine
	TypeCalibrate MessageType = "calibrate" // Position correction
	TypeConfig    MessageType = "config"    // Threshold update

	// Stream queries
	TypeGetStats    MessageType = "get_stats"
	TypeGetSnapshot MessageType = "get_snapshot"

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// SampleData is one linear-acceleration reading (m/s²)
type SampleData struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"` // ms
}

// Vector returns the reading as an axis array
func (s SampleData) Vector() [3]float64 {
	return [3]float64{s.X, s.Y, s.Z}
}

// RotationData is a rotation-vector quaternion in (x, y, z, w) order
type RotationData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Quaternion returns the components in (x, y, z, w) order
func (r RotationData) Quaternion() [4]float64 {
	return [4]float64{r.X, r.Y, r.Z, r.W}
}

// GetSample extracts a sample from a message
func (m *Message) GetSample() (*SampleData, error) {
	var data SampleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRotation extracts a rotation vector from a message
func (m *Message) GetRotation() (*RotationData, error) {
	var data RotationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// NewSnapshotMessage wraps a tracking snapshot
func NewSnapshotMessage(s pdr.Snapshot) (*Message, error) {
	return NewMessage(TypeSnapshot, s)
}

// ErrMissingTarget is returned for a calibration without both coordinates.
var ErrMissingTarget = errors.New("calibration needs x and y")

// CalibrateCommand corrects the tracked position
type CalibrateCommand struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Type string   `json:"type"` // add_line, set_position, shift_path
}

// Target returns the corrected position. Both coordinates are required.
func (c CalibrateCommand) Target() (pdr.Position, error) {
	if c.X == nil || c.Y == nil {
		return pdr.Position{}, ErrMissingTarget
	}
	return pdr.Position{X: *c.X, Y: *c.Y}, nil
}

// Kind parses the calibration type, defaulting to set_position
func (c CalibrateCommand) Kind() (pdr.CalibrationType, error) {
	if c.Type == "" {
		return pdr.SetPosition, nil
	}
	return pdr.ParseCalibrationType(c.Type)
}

// GetCalibrateCommand extracts a calibration command from a message
func (m *Message) GetCalibrateCommand() (*CalibrateCommand, error) {
	var data CalibrateCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ConfigUpdate contains threshold changes; nil fields are left alone
type ConfigUpdate struct {
	StepThreshold       *float64 `json:"step_threshold,omitempty"`
	StepCooldownMs      *int64   `json:"step_cooldown_ms,omitempty"`
	DefaultStrideLength *float64 `json:"default_stride_length,omitempty"`
	HeadingTolerance    *float64 `json:"heading_tolerance,omitempty"`
}

// Apply returns cfg with the update's non-nil fields applied
func (u ConfigUpdate) Apply(cfg pdr.Config) pdr.Config {
	if u.StepThreshold != nil {
		cfg.StepThreshold = *u.StepThreshold
	}
	if u.StepCooldownMs != nil {
		cfg.StepCooldownMs = *u.StepCooldownMs
	}
	if u.DefaultStrideLength != nil {
		cfg.DefaultStrideLength = *u.DefaultStrideLength
	}
	if u.HeadingTolerance != nil {
		cfg.HeadingTolerance = *u.HeadingTolerance
	}
	return cfg
}

// GetConfigUpdate extracts config update from a message
func (m *Message) GetConfigUpdate() (*ConfigUpdate, error) {
	var data ConfigUpdate
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
