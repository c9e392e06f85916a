package pathlog

import "github.com/teslashibe/go-pdr/internal/pdr"

// Trail is a rebuilt path plus the heading accumulated by its turns.
type Trail struct {
	Points  []pdr.Position
	Heading float64
}

// Reconstruct replays segments from start. Straight runs interpolate their
// heading linearly from Min to Max across their steps; turns only rotate
// the running heading.
func Reconstruct(segments []Segment, start pdr.Position) Trail {
	points := []pdr.Position{start}
	pos := start
	heading := 0.0

	for _, s := range segments {
		switch v := s.(type) {
		case Straight:
			if v.Steps <= 0 {
				continue
			}
			stepDistance := v.Distance / float64(v.Steps)
			headingStep := 0.0
			if v.Steps > 1 {
				headingStep = (v.HeadingRange.Max - v.HeadingRange.Min) / float64(v.Steps-1)
			}
			for i := 0; i < v.Steps; i++ {
				h := v.HeadingRange.Min + headingStep*float64(i)
				pos = pos.Add(pdr.Displacement(stepDistance, h))
				points = append(points, pos)
			}
			heading = pdr.NormalizeHeading(v.HeadingRange.Max)
		case Turn:
			heading = pdr.NormalizeHeading(heading + v.Direction.Sign()*v.Angle)
		}
	}

	return Trail{Points: points, Heading: heading}
}
