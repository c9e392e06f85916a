// Package session records tracking sessions and persists them as JSON files.
package session

import (
	"time"

	"github.com/teslashibe/go-pdr/internal/pathlog"
	"github.com/teslashibe/go-pdr/internal/pdr"
)

// Metadata describes a recorded session.
type Metadata struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	DurationMs    int64          `json:"duration_ms"`
	Bounds        pdr.AreaBounds `json:"bounds"`
	Warehouse     bool           `json:"warehouse"` // bounds are a warehouse map's extents
	Config        pdr.Config     `json:"config"`
	SampleCount   int            `json:"sample_count"`
	StepCount     int            `json:"step_count"`
	TotalDistance float64        `json:"total_distance"`
}

// RawSeries holds the sensor input, flattened: Accel is x,y,z per sample
// and Rotation is x,y,z,w per sample.
type RawSeries struct {
	Timestamps []int64   `json:"timestamps"`
	Accel      []float64 `json:"accel"`
	Rotation   []float64 `json:"rotation"`
}

// Series holds the processor output per sample. Positions are flattened
// x,y pairs; StepEvents lists the timestamps of detected steps.
type Series struct {
	Timestamps         []int64   `json:"timestamps"`
	Positions          []float64 `json:"positions"`
	StepCounts         []int     `json:"step_counts"`
	Distances          []float64 `json:"distances"`
	Headings           []float64 `json:"headings"`
	HeadingConfidences []float64 `json:"heading_confidences"`
	Confidences        []float64 `json:"confidences"`
	StepEvents         []int64   `json:"step_events"`
}

// Record is a complete saved session.
type Record struct {
	Metadata

	Raw      RawSeries        `json:"raw"`
	PDR      Series           `json:"pdr"`
	Path     []pdr.Position   `json:"path"`
	Segments []pathlog.Record `json:"segments"`
}

// DecodeSegments returns the analysed segments in their typed form.
func (r *Record) DecodeSegments() ([]pathlog.Segment, error) {
	return pathlog.Decode(r.Segments)
}

// Position returns the i-th recorded position.
func (s *Series) Position(i int) pdr.Position {
	return pdr.Position{X: s.Positions[2*i], Y: s.Positions[2*i+1]}
}
