package pathlog

import (
	"math"

	"github.com/teslashibe/go-pdr/internal/pdr"
)

// minStepDistance below which a point pair is treated as standing still.
const minStepDistance = 1e-9

// Analyzer segments a path into straight runs separated by turns.
type Analyzer struct {
	tolerance float64
}

// NewAnalyzer returns an analyzer that starts a turn when the heading moves
// more than tolerance degrees from the running heading.
func NewAnalyzer(tolerance float64) *Analyzer {
	return &Analyzer{tolerance: tolerance}
}

// Bearing returns the heading in [0,360) of the move from a to b, using the
// same convention as the processor: 0 is -y, clockwise positive.
func Bearing(a, b pdr.Position) float64 {
	deg := math.Atan2(b.X-a.X, -(b.Y-a.Y)) * 180 / math.Pi
	return pdr.NormalizeHeading(deg)
}

type run struct {
	started  bool
	heading  float64 // running heading, unwrapped
	rng      HeadingRange
	distance float64
	steps    int
}

func (r *run) begin(heading, distance float64) {
	*r = run{
		started:  true,
		heading:  heading,
		rng:      HeadingRange{Min: heading, Max: heading},
		distance: distance,
		steps:    1,
	}
}

func (r *run) extend(heading, distance float64) {
	r.heading = heading
	r.rng.Min = math.Min(r.rng.Min, heading)
	r.rng.Max = math.Max(r.rng.Max, heading)
	r.distance += distance
	r.steps++
}

func (r *run) flush(out []Segment) []Segment {
	if r.steps == 0 {
		return out
	}
	return append(out, Straight{HeadingRange: r.rng, Distance: r.distance, Steps: r.steps})
}

// Analyze walks consecutive point pairs. Paths with fewer than two points
// have no segments.
func (a *Analyzer) Analyze(path []pdr.Position) []Segment {
	if len(path) < 2 {
		return nil
	}

	var (
		out []Segment
		cur run
	)

	for i := 1; i < len(path); i++ {
		prev, next := path[i-1], path[i]
		distance := pdr.Distance(prev, next)

		if distance < minStepDistance {
			// Reverted or clamped steps keep the run's heading.
			if cur.started {
				cur.steps++
			}
			continue
		}

		heading := Bearing(prev, next)
		if !cur.started {
			cur.begin(heading, distance)
			continue
		}

		delta := pdr.WrapDelta(heading - cur.heading)
		if math.Abs(delta) > a.tolerance {
			out = cur.flush(out)

			dir := Left
			if delta > 0 {
				dir = Right
			}
			out = append(out, Turn{Direction: dir, Angle: math.Abs(delta), Steps: 1})

			cur.begin(heading, distance)
			continue
		}

		cur.extend(cur.heading+delta, distance)
	}

	return cur.flush(out)
}
