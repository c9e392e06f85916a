package pdr

import "github.com/golang/geo/r3"

const stepConfidence = 0.8

// StepDetector is a rising-edge threshold detector with a refractory period.
type StepDetector struct {
	threshold  float64
	cooldownMs int64

	lastStepTimestamp int64
	lastMagnitude     float64
	steps             int
}

// NewStepDetector creates a detector using cfg's threshold and cooldown.
func NewStepDetector(cfg Config) *StepDetector {
	return &StepDetector{
		threshold:  cfg.StepThreshold,
		cooldownMs: cfg.StepCooldownMs,
	}
}

// Magnitude returns the Euclidean norm of an acceleration sample.
func Magnitude(accel [3]float64) float64 {
	return r3.Vector{X: accel[0], Y: accel[1], Z: accel[2]}.Norm()
}

// Detect processes one sample and reports a step on an upward threshold
// crossing. No step is reported inside the cooldown window.
//
// The previous magnitude is tracked on every sample, so a peak that stays
// above threshold past the cooldown is still a single step.
func (d *StepDetector) Detect(accel [3]float64, timestamp int64) (StepData, bool) {
	magnitude := Magnitude(accel)
	prev := d.lastMagnitude
	d.lastMagnitude = magnitude

	if timestamp-d.lastStepTimestamp < d.cooldownMs {
		return StepData{}, false
	}

	if magnitude > d.threshold && prev <= d.threshold {
		d.steps++
		d.lastStepTimestamp = timestamp
		return StepData{
			Timestamp:  timestamp,
			Magnitude:  magnitude,
			Confidence: stepConfidence,
		}, true
	}

	return StepData{}, false
}

// Steps returns the number of steps detected since the last reset.
func (d *StepDetector) Steps() int {
	return d.steps
}

// UpdateConfig swaps thresholds without touching detector memory.
func (d *StepDetector) UpdateConfig(cfg Config) {
	d.threshold = cfg.StepThreshold
	d.cooldownMs = cfg.StepCooldownMs
}

// Reset clears detector memory and the step counter.
func (d *StepDetector) Reset() {
	d.lastStepTimestamp = 0
	d.lastMagnitude = 0
	d.steps = 0
}
