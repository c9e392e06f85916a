package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-pdr/internal/pathlog"
	"github.com/teslashibe/go-pdr/internal/pdr"
)

// ErrNotTracking is returned for operations that need a session in progress.
var ErrNotTracking = errors.New("tracker: no active session")

// Snapshot is the processor output published to subscribers.
type Snapshot = pdr.Snapshot

// Tracker owns a Processor and is the only thing that touches it.
type Tracker struct {
	source Source
	logger *slog.Logger

	mu           sync.RWMutex
	proc         *pdr.Processor
	lastRotation [4]float64
	observer     Observer

	// Metrics
	sampleCount   int64
	rotationCount int64
	errorCount    int64
	startedAt     time.Time

	// Lifecycle
	cancel context.CancelFunc
	done   chan struct{}

	// Subscribers for real-time updates
	subsMu sync.RWMutex
	subs   map[chan Snapshot]struct{}
}

// NewTracker wraps proc. source may be nil when samples arrive only through
// Ingest.
func NewTracker(proc *pdr.Processor, source Source, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		source:       source,
		logger:       logger,
		proc:         proc,
		lastRotation: [4]float64{0, 0, 0, 1},
		done:         make(chan struct{}),
		subs:         make(map[chan Snapshot]struct{}),
		startedAt:    time.Now(),
	}
}

// Run pulls samples from the source until ctx is cancelled or the source
// closes (blocking, use goroutine)
func (t *Tracker) Run(ctx context.Context) error {
	if t.source == nil {
		close(t.done)
		return errors.New("tracker: no source configured")
	}

	t.mu.Lock()
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()
	defer close(t.done)

	t.logger.Info("tracker started", "source", t.source.Name())

	for {
		sample, err := t.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.mu.RLock()
				samples, errs := t.sampleCount, t.errorCount
				t.mu.RUnlock()
				t.logger.Info("tracker stopped",
					"samples", samples,
					"errors", errs,
				)
				return ctx.Err()
			}
			if errors.Is(err, ErrSourceClosed) {
				t.logger.Info("source closed", "source", t.source.Name())
				return nil
			}

			t.mu.Lock()
			t.errorCount++
			t.mu.Unlock()
			t.logger.Warn("sample read failed", "error", err)
			continue
		}

		t.Ingest(sample)
	}
}

// Ingest feeds one sample to the processor and returns the resulting
// snapshot. Rotation samples only update the orientation; the heading
// follows on the next acceleration sample.
func (t *Tracker) Ingest(s Sample) Snapshot {
	t.mu.Lock()

	if s.Kind == KindRotation {
		t.proc.UpdateRotationVector(s.Rotation)
		t.lastRotation = s.Rotation
		t.rotationCount++
		snap := t.proc.Snapshot()
		t.mu.Unlock()
		return snap
	}

	prevSteps := t.proc.StepCount()
	snap := t.proc.ProcessSensorData(s.Accel, s.Timestamp)
	t.sampleCount++

	s.Rotation = t.lastRotation
	if t.observer != nil {
		t.observer.Observed(s, snap)
	}
	t.mu.Unlock()

	if snap.StepCount > prevSteps {
		t.logger.Debug("step",
			"count", snap.StepCount,
			"x", snap.Position.X,
			"y", snap.Position.Y,
			"heading", snap.Heading.Heading,
		)
	}

	// Notify subscribers (non-blocking)
	t.notifySubscribers(snap)

	return snap
}

// update runs fn under the write lock and publishes the resulting snapshot.
func (t *Tracker) update(fn func(p *pdr.Processor)) Snapshot {
	t.mu.Lock()
	fn(t.proc)
	snap := t.proc.Snapshot()
	t.mu.Unlock()

	t.notifySubscribers(snap)
	return snap
}

// StartTracking begins a session at initial.
func (t *Tracker) StartTracking(initial pdr.Position) Snapshot {
	t.mu.Lock()
	t.proc.StartTracking(initial)
	snap := t.proc.Snapshot()
	if t.observer != nil {
		t.observer.Started(snap)
	}
	t.mu.Unlock()

	t.logger.Info("tracking started", "x", snap.Position.X, "y", snap.Position.Y)
	t.notifySubscribers(snap)
	return snap
}

// PauseTracking freezes the position; samples keep refreshing the heading.
func (t *Tracker) PauseTracking() Snapshot {
	snap := t.update(func(p *pdr.Processor) { p.PauseTracking() })
	t.logger.Info("tracking paused", "steps", snap.StepCount)
	return snap
}

// ResumeTracking continues a paused session.
func (t *Tracker) ResumeTracking() Snapshot {
	snap := t.update(func(p *pdr.Processor) { p.ResumeTracking() })
	t.logger.Info("tracking resumed", "steps", snap.StepCount)
	return snap
}

// StopTracking ends step integration, keeping the session for inspection.
func (t *Tracker) StopTracking() Snapshot {
	snap := t.update(func(p *pdr.Processor) { p.StopTracking() })
	t.logger.Info("tracking stopped",
		"steps", snap.StepCount,
		"distance", snap.TotalDistance,
	)
	return snap
}

// Reset returns to idle and clears the session.
func (t *Tracker) Reset() Snapshot {
	snap := t.update(func(p *pdr.Processor) { p.Reset() })
	t.logger.Info("tracker reset")
	return snap
}

// SetInitialPosition places the walker without starting a session.
func (t *Tracker) SetInitialPosition(pos pdr.Position) Snapshot {
	return t.update(func(p *pdr.Processor) { p.SetInitialPosition(pos) })
}

// Calibrate applies an operator position correction.
func (t *Tracker) Calibrate(pos pdr.Position, kind pdr.CalibrationType) Snapshot {
	snap := t.update(func(p *pdr.Processor) { p.CalibratePosition(pos, kind) })
	t.logger.Info("position calibrated",
		"type", kind.String(),
		"x", snap.Position.X,
		"y", snap.Position.Y,
	)
	return snap
}

// UpdateConfig swaps the thresholds after validating them.
func (t *Tracker) UpdateConfig(cfg pdr.Config) (Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, err
	}

	snap := t.update(func(p *pdr.Processor) { p.UpdateConfig(cfg) })
	t.logger.Info("config updated",
		"step_threshold", cfg.StepThreshold,
		"step_cooldown_ms", cfg.StepCooldownMs,
		"default_stride_length", cfg.DefaultStrideLength,
		"heading_tolerance", cfg.HeadingTolerance,
	)
	return snap, nil
}

// SetBounds swaps the bounds policy.
func (t *Tracker) SetBounds(b pdr.Bounds) {
	t.mu.Lock()
	t.proc.SetBounds(b)
	t.mu.Unlock()
}

// Bounds returns the active bounds policy.
func (t *Tracker) Bounds() pdr.Bounds {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.proc.Bounds()
}

// Config returns the active thresholds.
func (t *Tracker) Config() pdr.Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.proc.Config()
}

// SetObserver installs o; nil removes the current observer.
func (t *Tracker) SetObserver(o Observer) {
	t.mu.Lock()
	t.observer = o
	t.mu.Unlock()
}

// Latest returns the current snapshot
func (t *Tracker) Latest() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.proc.Snapshot()
}

// Path returns a copy of the recorded path
func (t *Tracker) Path() []pdr.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.proc.PathHistory()
}

// Segments splits the recorded path into straights and turns using the
// configured heading tolerance.
func (t *Tracker) Segments() []pathlog.Segment {
	t.mu.RLock()
	path := t.proc.PathHistory()
	tolerance := t.proc.Config().HeadingTolerance
	t.mu.RUnlock()

	return pathlog.NewAnalyzer(tolerance).Analyze(path)
}

// ApplySegments rebuilds the path from edited segments, starting at the
// session's first point, and makes it the recorded path. The returned path
// is the one stored, after the bounds have clamped or reverted its steps.
func (t *Tracker) ApplySegments(segments []pathlog.Segment) ([]pdr.Position, error) {
	t.mu.Lock()

	history := t.proc.PathHistory()
	if t.proc.State() == pdr.StateIdle || len(history) == 0 {
		t.mu.Unlock()
		return nil, ErrNotTracking
	}

	trail := pathlog.Reconstruct(segments, history[0])
	t.proc.UpdatePathHistory(trail.Points)
	path := t.proc.PathHistory()
	snap := t.proc.Snapshot()
	t.mu.Unlock()

	t.logger.Info("path rebuilt from segments",
		"segments", len(segments),
		"points", len(path),
	)
	t.notifySubscribers(snap)
	return path, nil
}

func (t *Tracker) notifySubscribers(snap Snapshot) {
	t.subsMu.RLock()
	defer t.subsMu.RUnlock()

	for ch := range t.subs {
		select {
		case ch <- snap:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Subscribe returns a channel that receives snapshot updates
func (t *Tracker) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 16)

	t.subsMu.Lock()
	t.subs[ch] = struct{}{}
	t.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber
func (t *Tracker) Unsubscribe(ch chan Snapshot) {
	t.subsMu.Lock()
	if _, exists := t.subs[ch]; exists {
		delete(t.subs, ch)
		close(ch)
	}
	t.subsMu.Unlock()
}

// Stats returns tracker statistics
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	snap := t.proc.Snapshot()
	stats := Stats{
		SampleCount:   t.sampleCount,
		RotationCount: t.rotationCount,
		ErrorCount:    t.errorCount,
		State:         snap.State.String(),
		StepCount:     snap.StepCount,
		TotalDistance: snap.TotalDistance,
		MeanStride:    t.proc.MeanStride(),
		PathPoints:    t.proc.PathLen(),
		Heading:       snap.Heading.Heading,
		Confidence:    snap.Confidence,
		UptimeSeconds: time.Since(t.startedAt).Seconds(),
	}
	t.mu.RUnlock()

	if t.source != nil {
		stats.Source = t.source.Name()
		stats.SourceHealthy = t.source.Healthy()
	} else {
		stats.Source = "none"
	}

	t.subsMu.RLock()
	stats.SubscriberCount = len(t.subs)
	t.subsMu.RUnlock()

	return stats
}

// Stats contains tracker statistics
type Stats struct {
	SampleCount     int64   `json:"sample_count"`
	RotationCount   int64   `json:"rotation_count"`
	ErrorCount      int64   `json:"error_count"`
	State           string  `json:"state"`
	StepCount       int     `json:"step_count"`
	TotalDistance   float64 `json:"total_distance"`
	MeanStride      float64 `json:"mean_stride"`
	PathPoints      int     `json:"path_points"`
	Heading         float64 `json:"heading"`
	Confidence      float64 `json:"confidence"`
	SubscriberCount int     `json:"subscriber_count"`
	Source          string  `json:"source"`
	SourceHealthy   bool    `json:"source_healthy"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Stop stops the tracker gracefully
func (t *Tracker) Stop() {
	t.mu.RLock()
	cancel := t.cancel
	t.mu.RUnlock()

	if cancel != nil {
		cancel()
		<-t.done
	}

	// Close all subscriber channels
	t.subsMu.Lock()
	for ch := range t.subs {
		close(ch)
		delete(t.subs, ch)
	}
	t.subsMu.Unlock()
}
