package pdr

// Processor turns accelerometer samples and rotation vectors into a bounded
// position track. It holds no locks; callers feeding it from several
// goroutines must serialize access themselves.
type Processor struct {
	cfg    Config
	bounds Bounds

	steps   *StepDetector
	stride  *StrideEstimator
	heading *HeadingEstimator

	state         State
	position      Position
	currentHead   HeadingData
	stepCount     int
	totalDistance float64
	lastStep      *StepData
	lastStride    *StrideData

	history []Position
}

// NewProcessor creates an idle processor. A nil bounds accepts every
// position.
func NewProcessor(cfg Config, bounds Bounds) *Processor {
	if bounds == nil {
		bounds = unbounded{}
	}
	return &Processor{
		cfg:     cfg,
		bounds:  bounds,
		steps:   NewStepDetector(cfg),
		stride:  NewStrideEstimator(cfg),
		heading: NewHeadingEstimator(),
	}
}

type unbounded struct{}

func (unbounded) Resolve(_, to Position) Position { return to }
func (unbounded) Place(_, to Position) Position   { return to }

// UpdateRotationVector feeds the latest fused orientation (x, y, z, w).
func (p *Processor) UpdateRotationVector(q [4]float64) {
	p.heading.Update(q)
}

// ProcessSensorData handles one accelerometer sample. The heading is
// refreshed on every call; steps and position only advance while tracking.
func (p *Processor) ProcessSensorData(accel [3]float64, timestamp int64) Snapshot {
	p.currentHead = p.heading.Estimate()

	if p.state != StateTracking {
		return p.Snapshot()
	}

	step, ok := p.steps.Detect(accel, timestamp)
	if !ok {
		return p.Snapshot()
	}

	stride := p.stride.Estimate(accel, timestamp)
	p.lastStride = &stride

	candidate := p.position.Add(Displacement(stride.Length, p.currentHead.Heading))
	p.position = p.bounds.Resolve(p.position, candidate)

	p.stepCount++
	// Distance follows the stride estimate even when the move was clamped.
	p.totalDistance += stride.Length
	p.lastStep = &step
	p.history = append(p.history, p.position)

	return p.Snapshot()
}

// StartTracking begins a new session at initial (bounded), clearing all
// estimator state and the path history. Configuration is kept.
func (p *Processor) StartTracking(initial Position) {
	p.position = p.bounds.Place(p.position, initial)

	p.steps.Reset()
	p.stride.Reset()
	p.heading.Reset()

	p.currentHead = HeadingData{}
	p.stepCount = 0
	p.totalDistance = 0
	p.lastStep = nil
	p.lastStride = nil
	p.history = append(p.history[:0], p.position)

	p.state = StateTracking
}

// PauseTracking suspends position updates, keeping all estimator state.
func (p *Processor) PauseTracking() {
	if p.state == StateTracking {
		p.state = StatePaused
	}
}

// StopTracking is an alias of PauseTracking; the session can be resumed.
func (p *Processor) StopTracking() {
	p.PauseTracking()
}

// ResumeTracking continues a paused session without clearing history.
func (p *Processor) ResumeTracking() {
	if p.state == StatePaused {
		p.state = StateTracking
	}
}

// Reset returns to idle and clears estimator, position and path state.
func (p *Processor) Reset() {
	p.steps.Reset()
	p.stride.Reset()
	p.heading.Reset()

	p.state = StateIdle
	p.position = Position{}
	p.currentHead = HeadingData{}
	p.stepCount = 0
	p.totalDistance = 0
	p.lastStep = nil
	p.lastStride = nil
	p.history = p.history[:0]
}

// SetInitialPosition places the walker without starting a session and
// restarts the path history from that point.
func (p *Processor) SetInitialPosition(pos Position) {
	p.position = p.bounds.Place(p.position, pos)
	p.history = append(p.history[:0], p.position)
}

// CalibratePosition applies an operator correction. It works in any state
// and leaves the step and distance counters alone.
func (p *Processor) CalibratePosition(pos Position, kind CalibrationType) {
	next := p.bounds.Place(p.position, pos)
	p.history = Calibrate(p.history, p.position, next, kind)
	p.position = next
}

// UpdatePathHistory replaces the recorded path, e.g. with a path rebuilt from
// edited segments. The first point is placed and every later point is
// replayed as a step through the bounds, so the stored path obeys them just
// as a walked one does. The last accepted point becomes the current
// position. An empty path is ignored.
func (p *Processor) UpdatePathHistory(path []Position) {
	if len(path) == 0 {
		return
	}

	prev := p.bounds.Place(p.position, path[0])
	p.history = append(p.history[:0], prev)
	for _, pt := range path[1:] {
		prev = p.bounds.Resolve(prev, pt)
		p.history = append(p.history, prev)
	}
	p.position = prev
}

// UpdateConfig swaps thresholds at runtime.
func (p *Processor) UpdateConfig(cfg Config) {
	p.cfg = cfg
	p.steps.UpdateConfig(cfg)
	p.stride.UpdateConfig(cfg)
}

// SetBounds swaps the bounds policy. Intended for use between sessions.
func (p *Processor) SetBounds(b Bounds) {
	if b == nil {
		b = unbounded{}
	}
	p.bounds = b
}

// Bounds returns the active bounds policy.
func (p *Processor) Bounds() Bounds { return p.bounds }

// Config returns the active configuration.
func (p *Processor) Config() Config { return p.cfg }

// State returns the tracking state.
func (p *Processor) State() State { return p.state }

// Tracking reports whether steps currently move the position.
func (p *Processor) Tracking() bool { return p.state == StateTracking }

// Position returns the current position.
func (p *Processor) Position() Position { return p.position }

// Heading returns the heading computed on the last sample.
func (p *Processor) Heading() HeadingData { return p.currentHead }

// StepCount returns the steps taken this session.
func (p *Processor) StepCount() int { return p.stepCount }

// TotalDistance returns the summed stride estimates this session.
func (p *Processor) TotalDistance() float64 { return p.totalDistance }

// MeanStride returns the estimator's recent average stride.
func (p *Processor) MeanStride() float64 { return p.stride.MeanStride() }

// PathLen returns the number of recorded path points without copying.
func (p *Processor) PathLen() int { return len(p.history) }

// PathHistory returns a copy of the recorded path.
func (p *Processor) PathHistory() []Position {
	out := make([]Position, len(p.history))
	copy(out, p.history)
	return out
}

// Snapshot returns the current output without processing a sample.
func (p *Processor) Snapshot() Snapshot {
	var last *StepData
	if p.lastStep != nil {
		s := *p.lastStep
		last = &s
	}
	return Snapshot{
		Position:      p.position,
		StepCount:     p.stepCount,
		TotalDistance: p.totalDistance,
		Heading:       p.currentHead,
		LastStep:      last,
		Tracking:      p.state == StateTracking,
		State:         p.state,
		Confidence:    p.confidence(),
		Config:        p.cfg,
	}
}

// confidence averages the step, heading and stride confidences that are
// currently available. Heading always contributes.
func (p *Processor) confidence() float64 {
	sum := p.currentHead.Confidence
	n := 1

	if p.lastStep != nil {
		sum += p.lastStep.Confidence
		n++
	}
	if p.lastStride != nil {
		sum += p.lastStride.Confidence
		n++
	}

	return sum / float64(n)
}
