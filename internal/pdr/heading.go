package pdr

import "math"

const (
	headingConfidenceUnit     = 0.9
	headingConfidenceDegraded = 0.6
	unitNormTolerance         = 0.1
)

// HeadingEstimator extracts yaw from the platform-fused rotation vector.
type HeadingEstimator struct {
	quat    [4]float64 // x, y, z, w
	hasData bool
}

// NewHeadingEstimator returns an estimator with no orientation yet.
func NewHeadingEstimator() *HeadingEstimator {
	return &HeadingEstimator{}
}

// Update stores the latest quaternion in (x, y, z, w) order.
func (h *HeadingEstimator) Update(q [4]float64) {
	h.quat = q
	h.hasData = true
}

// Estimate returns the current heading. Without any quaternion it reports
// heading 0 with confidence 0.
func (h *HeadingEstimator) Estimate() HeadingData {
	if !h.hasData {
		return HeadingData{}
	}

	yaw := Yaw(h.quat)
	heading := NormalizeHeading(yaw * 180 / math.Pi)

	x, y, z, w := h.quat[0], h.quat[1], h.quat[2], h.quat[3]
	norm := math.Sqrt(x*x + y*y + z*z + w*w)

	confidence := headingConfidenceDegraded
	if math.Abs(norm-1) < unitNormTolerance {
		confidence = headingConfidenceUnit
	}

	return HeadingData{Heading: heading, Confidence: confidence}
}

// Reset forgets the stored orientation.
func (h *HeadingEstimator) Reset() {
	h.quat = [4]float64{}
	h.hasData = false
}

// Yaw returns the z-axis Euler rotation in radians of a quaternion given in
// (x, y, z, w) order.
func Yaw(q [4]float64) float64 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	return math.Atan2(sinyCosp, cosyCosp)
}

// QuaternionFromYaw builds a unit quaternion for a pure z rotation. Handy for
// simulated feeds and tests.
func QuaternionFromYaw(yawRad float64) [4]float64 {
	return [4]float64{0, 0, math.Sin(yawRad / 2), math.Cos(yawRad / 2)}
}
