package pdr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accel(mag float64) [3]float64 {
	return [3]float64{0, 0, mag}
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Magnitude([3]float64{3, 4, 0}), 1e-12)
	assert.InDelta(t, 13.0, Magnitude([3]float64{3, 4, 12}), 1e-12)
}

func TestStepDetector_RisingEdge(t *testing.T) {
	d := NewStepDetector(DefaultConfig())

	_, ok := d.Detect(accel(9.8), 1000)
	assert.False(t, ok)

	step, ok := d.Detect(accel(13), 1020)
	require.True(t, ok)
	assert.Equal(t, int64(1020), step.Timestamp)
	assert.InDelta(t, 13.0, step.Magnitude, 1e-12)
	assert.Equal(t, stepConfidence, step.Confidence)
	assert.Equal(t, 1, d.Steps())
}

func TestStepDetector_Cooldown(t *testing.T) {
	d := NewStepDetector(DefaultConfig())

	d.Detect(accel(9.8), 1000)
	_, ok := d.Detect(accel(13), 1020)
	require.True(t, ok)

	// A fresh crossing inside the cooldown window is ignored.
	d.Detect(accel(9.8), 1100)
	_, ok = d.Detect(accel(13), 1200)
	assert.False(t, ok)

	d.Detect(accel(9.8), 1500)
	_, ok = d.Detect(accel(13), 1520)
	assert.True(t, ok)
	assert.Equal(t, 2, d.Steps())
}

func TestStepDetector_SustainedPeakCountsOnce(t *testing.T) {
	d := NewStepDetector(DefaultConfig())

	d.Detect(accel(9.8), 1000)
	_, ok := d.Detect(accel(13), 1020)
	require.True(t, ok)

	for ts := int64(1040); ts < 3000; ts += 20 {
		_, ok := d.Detect(accel(13), ts)
		assert.False(t, ok, "unexpected step at %d", ts)
	}
	assert.Equal(t, 1, d.Steps())
}

func TestStepDetector_NeverWithinCooldown(t *testing.T) {
	cfg := DefaultConfig()
	d := NewStepDetector(cfg)
	rng := rand.New(rand.NewSource(7))

	last := int64(-1)
	ts := int64(1000)
	for i := 0; i < 10000; i++ {
		ts += int64(rng.Intn(40))
		step, ok := d.Detect(accel(rng.Float64()*25), ts)
		if !ok {
			continue
		}
		if last >= 0 && step.Timestamp-last < cfg.StepCooldownMs {
			t.Fatalf("steps at %d and %d closer than cooldown", last, step.Timestamp)
		}
		last = step.Timestamp
	}
}

func TestStepDetector_Reset(t *testing.T) {
	d := NewStepDetector(DefaultConfig())
	d.Detect(accel(9.8), 1000)
	d.Detect(accel(13), 1020)

	d.Reset()

	assert.Equal(t, 0, d.Steps())
	_, ok := d.Detect(accel(13), 1040)
	assert.True(t, ok, "reset should clear cooldown and magnitude memory")
}

func TestStepDetector_UpdateConfig(t *testing.T) {
	d := NewStepDetector(DefaultConfig())

	cfg := DefaultConfig()
	cfg.StepThreshold = 20
	d.UpdateConfig(cfg)

	_, ok := d.Detect(accel(13), 1000)
	assert.False(t, ok, "13 is below the raised threshold")

	_, ok = d.Detect(accel(21), 1020)
	assert.True(t, ok)
}
