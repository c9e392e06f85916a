// Package feed provides sensor sample sources for the tracker.
package feed

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/tracker"
)

const (
	gravity       = 9.8
	gaitAmplitude = 4.0 // m/s² swing around gravity per step
)

// WalkerConfig configures the simulated walker
type WalkerConfig struct {
	RateHz  int     // accelerometer samples per second
	StepHz  float64 // cadence
	Heading float64 // degrees clockwise from north
}

// WalkerSource simulates a person walking in a straight line. Every
// acceleration cycle crosses the default step threshold once, and a
// rotation vector for the current heading is emitted once per second.
type WalkerSource struct {
	cfg WalkerConfig

	mu       sync.Mutex
	heading  float64
	healthy  bool
	closed   bool
	n        int64
	baseTime int64
	ticker   *time.Ticker
	rotation bool // rotation vector due before the next accel sample
}

// NewWalkerSource creates a walker. A zero rate falls back to 50 Hz.
func NewWalkerSource(cfg WalkerConfig) *WalkerSource {
	if cfg.RateHz <= 0 {
		cfg.RateHz = 50
	}
	if cfg.StepHz <= 0 {
		cfg.StepHz = 1.8
	}

	return &WalkerSource{
		cfg:      cfg,
		heading:  cfg.Heading,
		healthy:  true,
		baseTime: time.Now().UnixMilli(),
		ticker:   time.NewTicker(time.Second / time.Duration(cfg.RateHz)),
		rotation: true,
	}
}

// Next returns the next simulated sample, paced at the configured rate.
func (w *WalkerSource) Next(ctx context.Context) (tracker.Sample, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return tracker.Sample{}, tracker.ErrSourceClosed
	}
	if w.rotation {
		w.rotation = false
		s := tracker.RotationSample(w.quaternion(), w.timestamp())
		w.mu.Unlock()
		return s, nil
	}
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return tracker.Sample{}, ctx.Err()
	case <-w.ticker.C:
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return tracker.Sample{}, tracker.ErrSourceClosed
	}

	s := tracker.AccelSample(w.accel(), w.timestamp())
	w.n++
	if w.n%int64(w.cfg.RateHz) == 0 {
		w.rotation = true
	}
	return s, nil
}

// accel returns the gait waveform for the current sample index.
func (w *WalkerSource) accel() [3]float64 {
	t := float64(w.n) / float64(w.cfg.RateHz)
	mag := gravity + gaitAmplitude*math.Sin(2*math.Pi*w.cfg.StepHz*t)
	return [3]float64{0, 0, mag}
}

func (w *WalkerSource) timestamp() int64 {
	return w.baseTime + w.n*1000/int64(w.cfg.RateHz)
}

func (w *WalkerSource) quaternion() [4]float64 {
	return pdr.QuaternionFromYaw(w.heading * math.Pi / 180)
}

// SetHeading turns the walker; the new rotation vector is emitted next.
func (w *WalkerSource) SetHeading(deg float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heading = deg
	w.rotation = true
}

// Close stops the walker
func (w *WalkerSource) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		w.ticker.Stop()
	}
	return nil
}

// Healthy returns true if the source is operational
func (w *WalkerSource) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.healthy && !w.closed
}

// SetHealthy sets the mock health state
func (w *WalkerSource) SetHealthy(healthy bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.healthy = healthy
}

// Name returns the source type name
func (w *WalkerSource) Name() string {
	return "mock"
}
