// Package pathlog splits a recorded path into straight runs and turns and
// rebuilds a path from (possibly edited) segments.
package pathlog

import (
	"fmt"
)

// Segment is either a Straight or a Turn. The unexported marker keeps the
// set of variants closed to this package.
type Segment interface {
	segment()
}

// HeadingRange is the span of headings seen along a straight run, in
// degrees. Values are unwrapped relative to the run's first heading, so a
// run drifting across north reads e.g. [-4, 6] rather than [6, 356].
type HeadingRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Straight is a run of steps with a near-constant heading.
type Straight struct {
	HeadingRange HeadingRange
	Distance     float64
	Steps        int
}

// Direction is the sense of a turn.
type Direction int

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Right {
		return "right"
	}
	return "left"
}

// Sign returns +1 for Right (clockwise) and -1 for Left.
func (d Direction) Sign() float64 {
	if d == Right {
		return 1
	}
	return -1
}

// Turn is a heading change between two straight runs.
type Turn struct {
	Direction Direction
	Angle     float64 // degrees, non-negative
	Steps     int
}

func (Straight) segment() {}
func (Turn) segment()     {}

// TotalDistance sums the distance of all straight segments.
func TotalDistance(segments []Segment) float64 {
	var d float64
	for _, s := range segments {
		if st, ok := s.(Straight); ok {
			d += st.Distance
		}
	}
	return d
}

// Record is the flat, serializable form of a Segment.
type Record struct {
	Kind       string  `json:"kind"` // straight, turn
	HeadingMin float64 `json:"heading_min,omitempty"`
	HeadingMax float64 `json:"heading_max,omitempty"`
	Distance   float64 `json:"distance,omitempty"`
	Direction  string  `json:"direction,omitempty"` // left, right
	Angle      float64 `json:"angle,omitempty"`
	Steps      int     `json:"steps"`
}

// Encode flattens segments for persistence or transport.
func Encode(segments []Segment) []Record {
	out := make([]Record, 0, len(segments))
	for _, s := range segments {
		switch v := s.(type) {
		case Straight:
			out = append(out, Record{
				Kind:       "straight",
				HeadingMin: v.HeadingRange.Min,
				HeadingMax: v.HeadingRange.Max,
				Distance:   v.Distance,
				Steps:      v.Steps,
			})
		case Turn:
			out = append(out, Record{
				Kind:      "turn",
				Direction: v.Direction.String(),
				Angle:     v.Angle,
				Steps:     v.Steps,
			})
		}
	}
	return out
}

// Decode rebuilds segments from records.
func Decode(records []Record) ([]Segment, error) {
	out := make([]Segment, 0, len(records))
	for i, r := range records {
		switch r.Kind {
		case "straight":
			if r.Steps < 0 || r.Distance < 0 {
				return nil, fmt.Errorf("segment %d: negative steps or distance", i)
			}
			out = append(out, Straight{
				HeadingRange: HeadingRange{Min: r.HeadingMin, Max: r.HeadingMax},
				Distance:     r.Distance,
				Steps:        r.Steps,
			})
		case "turn":
			var dir Direction
			switch r.Direction {
			case "left":
				dir = Left
			case "right":
				dir = Right
			default:
				return nil, fmt.Errorf("segment %d: unknown turn direction %q", i, r.Direction)
			}
			out = append(out, Turn{Direction: dir, Angle: r.Angle, Steps: r.Steps})
		default:
			return nil, fmt.Errorf("segment %d: unknown kind %q", i, r.Kind)
		}
	}
	return out, nil
}
