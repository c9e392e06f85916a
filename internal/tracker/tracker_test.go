package tracker

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-pdr/internal/pathlog"
	"github.com/teslashibe/go-pdr/internal/pdr"
)

// scriptSource replays a fixed list of samples, then reports closed.
type scriptSource struct {
	mu     sync.Mutex
	items  []scriptItem
	closed bool
}

type scriptItem struct {
	sample Sample
	err    error
}

func (s *scriptSource) Next(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return Sample{}, ErrSourceClosed
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item.sample, item.err
}

func (s *scriptSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *scriptSource) Healthy() bool { return true }
func (s *scriptSource) Name() string  { return "script" }

// blockingSource never produces a sample.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (Sample, error) {
	<-ctx.Done()
	return Sample{}, ctx.Err()
}
func (blockingSource) Close() error  { return nil }
func (blockingSource) Healthy() bool { return false }
func (blockingSource) Name() string  { return "blocking" }

// gait returns n steps of resting/peak acceleration pairs starting after ts.
func gait(n int, ts int64) []Sample {
	out := make([]Sample, 0, 2*n)
	for i := 0; i < n; i++ {
		ts += 500
		out = append(out, AccelSample([3]float64{0, 0, 9.8}, ts))
		ts += 20
		out = append(out, AccelSample([3]float64{0, 0, 13}, ts))
	}
	return out
}

func yaw(deg float64) [4]float64 {
	return pdr.QuaternionFromYaw(deg * math.Pi / 180)
}

func newTestTracker(source Source) *Tracker {
	return NewTracker(pdr.NewProcessor(pdr.DefaultConfig(), nil), source, nil)
}

func TestTracker_IngestWalk(t *testing.T) {
	tr := newTestTracker(nil)
	tr.StartTracking(pdr.Position{})
	tr.Ingest(RotationSample(yaw(90), 0))

	var snap Snapshot
	for _, s := range gait(3, 1000) {
		snap = tr.Ingest(s)
	}

	if snap.StepCount != 3 {
		t.Fatalf("StepCount = %d, want 3", snap.StepCount)
	}
	if math.Abs(snap.Position.X-2.1) > 1e-9 || math.Abs(snap.Position.Y) > 1e-9 {
		t.Errorf("Position = %+v, want (2.1, 0)", snap.Position)
	}
	if math.Abs(snap.Heading.Heading-90) > 1e-9 {
		t.Errorf("Heading = %v, want 90", snap.Heading.Heading)
	}

	stats := tr.Stats()
	if stats.SampleCount != 6 {
		t.Errorf("SampleCount = %d, want 6", stats.SampleCount)
	}
	if stats.RotationCount != 1 {
		t.Errorf("RotationCount = %d, want 1", stats.RotationCount)
	}
	if stats.PathPoints != 4 {
		t.Errorf("PathPoints = %d, want 4", stats.PathPoints)
	}
	if stats.Source != "none" || stats.SourceHealthy {
		t.Errorf("unexpected source stats %q/%v", stats.Source, stats.SourceHealthy)
	}
}

func TestTracker_RunDrainsSource(t *testing.T) {
	items := []scriptItem{
		{sample: RotationSample(yaw(180), 0)},
		{err: errors.New("garbled frame")},
	}
	for _, s := range gait(2, 1000) {
		items = append(items, scriptItem{sample: s})
	}
	src := &scriptSource{items: items}

	tr := newTestTracker(src)
	tr.StartTracking(pdr.Position{X: 5, Y: 5})

	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v, want nil on closed source", err)
	}

	stats := tr.Stats()
	if stats.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", stats.ErrorCount)
	}
	if stats.StepCount != 2 {
		t.Errorf("StepCount = %d, want 2", stats.StepCount)
	}

	// Heading 180 walks toward +y.
	pos := tr.Latest().Position
	if math.Abs(pos.X-5) > 1e-9 || math.Abs(pos.Y-6.4) > 1e-9 {
		t.Errorf("Position = %+v, want (5, 6.4)", pos)
	}
}

func TestTracker_RunStopsOnCancel(t *testing.T) {
	tr := newTestTracker(blockingSource{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- tr.Run(context.Background())
	}()

	// Wait for Run to install its cancel func.
	for i := 0; i < 200; i++ {
		tr.mu.RLock()
		running := tr.cancel != nil
		tr.mu.RUnlock()
		if running {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	tr.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestTracker_RunWithoutSource(t *testing.T) {
	tr := newTestTracker(nil)
	if err := tr.Run(context.Background()); err == nil {
		t.Error("expected error without a source")
	}
}

func TestTracker_Subscribe(t *testing.T) {
	tr := newTestTracker(nil)
	ch := tr.Subscribe()

	tr.StartTracking(pdr.Position{X: 1, Y: 2})

	select {
	case snap := <-ch:
		if snap.State != pdr.StateTracking {
			t.Errorf("State = %v, want tracking", snap.State)
		}
		if snap.Position != (pdr.Position{X: 1, Y: 2}) {
			t.Errorf("Position = %+v", snap.Position)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	if got := tr.Stats().SubscriberCount; got != 1 {
		t.Errorf("SubscriberCount = %d, want 1", got)
	}

	tr.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Second unsubscribe is a no-op
	tr.Unsubscribe(ch)
}

func TestTracker_StopClosesSubscribers(t *testing.T) {
	tr := newTestTracker(nil)
	ch := tr.Subscribe()

	tr.Stop()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Stop")
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTestTracker(nil)

	if got := tr.PauseTracking().State; got != pdr.StateIdle {
		t.Errorf("pause while idle: State = %v, want idle", got)
	}

	tr.StartTracking(pdr.Position{})
	if got := tr.PauseTracking().State; got != pdr.StatePaused {
		t.Errorf("State = %v, want paused", got)
	}

	// Paused sessions ignore steps
	for _, s := range gait(2, 1000) {
		tr.Ingest(s)
	}
	if got := tr.Latest().StepCount; got != 0 {
		t.Errorf("StepCount while paused = %d, want 0", got)
	}

	if got := tr.ResumeTracking().State; got != pdr.StateTracking {
		t.Errorf("State = %v, want tracking", got)
	}
	if got := tr.StopTracking().State; got != pdr.StatePaused {
		t.Errorf("State after stop = %v, want paused", got)
	}

	snap := tr.Reset()
	if snap.State != pdr.StateIdle || len(tr.Path()) != 0 {
		t.Errorf("Reset left state %v with %d path points", snap.State, len(tr.Path()))
	}
}

func TestTracker_Calibrate(t *testing.T) {
	tr := newTestTracker(nil)
	tr.StartTracking(pdr.Position{})

	snap := tr.Calibrate(pdr.Position{X: 3, Y: 4}, pdr.AddLine)
	if snap.Position != (pdr.Position{X: 3, Y: 4}) {
		t.Errorf("Position = %+v, want (3, 4)", snap.Position)
	}

	path := tr.Path()
	if len(path) != 2 || path[1] != (pdr.Position{X: 3, Y: 4}) {
		t.Errorf("Path = %+v", path)
	}
}

func TestTracker_SetInitialPosition(t *testing.T) {
	tr := newTestTracker(nil)
	tr.SetBounds(pdr.NewArea(5, 5))

	snap := tr.SetInitialPosition(pdr.Position{X: 9, Y: 2})
	if snap.Position != (pdr.Position{X: 5, Y: 2}) {
		t.Errorf("Position = %+v, want clamped (5, 2)", snap.Position)
	}
	if snap.State != pdr.StateIdle {
		t.Errorf("State = %v, want idle", snap.State)
	}

	if _, ok := tr.Bounds().(pdr.AreaBounds); !ok {
		t.Errorf("Bounds() = %T, want AreaBounds", tr.Bounds())
	}
}

func TestTracker_UpdateConfig(t *testing.T) {
	tr := newTestTracker(nil)

	cfg := pdr.DefaultConfig()
	cfg.StepThreshold = 0
	if _, err := tr.UpdateConfig(cfg); err == nil {
		t.Error("expected validation error")
	}
	if tr.Config().StepThreshold != 12 {
		t.Errorf("invalid config should not be applied, got %v", tr.Config().StepThreshold)
	}

	cfg.StepThreshold = 20
	snap, err := tr.UpdateConfig(cfg)
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if snap.Config.StepThreshold != 20 {
		t.Errorf("snapshot config = %v, want 20", snap.Config.StepThreshold)
	}

	// 13 m/s² peaks no longer count
	tr.StartTracking(pdr.Position{})
	for _, s := range gait(3, 1000) {
		tr.Ingest(s)
	}
	if got := tr.Latest().StepCount; got != 0 {
		t.Errorf("StepCount = %d, want 0 above the new threshold", got)
	}
}

func TestTracker_Segments(t *testing.T) {
	tr := newTestTracker(nil)
	tr.StartTracking(pdr.Position{})

	tr.Ingest(RotationSample(yaw(0), 0))
	ts := int64(1000)
	for _, s := range gait(3, ts) {
		tr.Ingest(s)
	}
	ts += 3 * 520

	tr.Ingest(RotationSample(yaw(90), ts))
	for _, s := range gait(2, ts) {
		tr.Ingest(s)
	}

	segs := tr.Segments()
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(segs), segs)
	}

	turn, ok := segs[1].(pathlog.Turn)
	if !ok {
		t.Fatalf("segment 1 = %T, want Turn", segs[1])
	}
	if turn.Direction != pathlog.Right || math.Abs(turn.Angle-90) > 1e-6 {
		t.Errorf("turn = %+v, want right 90", turn)
	}
}

func TestTracker_ApplySegments(t *testing.T) {
	tr := newTestTracker(nil)

	segs := []pathlog.Segment{
		pathlog.Straight{HeadingRange: pathlog.HeadingRange{Min: 90, Max: 90}, Distance: 2, Steps: 2},
	}

	if _, err := tr.ApplySegments(segs); !errors.Is(err, ErrNotTracking) {
		t.Fatalf("ApplySegments() while idle error = %v, want ErrNotTracking", err)
	}

	tr.StartTracking(pdr.Position{X: 1, Y: 1})
	points, err := tr.ApplySegments(segs)
	if err != nil {
		t.Fatalf("ApplySegments() error = %v", err)
	}

	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}

	end := tr.Latest().Position
	if math.Abs(end.X-3) > 1e-9 || math.Abs(end.Y-1) > 1e-9 {
		t.Errorf("Position = %+v, want (3, 1)", end)
	}
	if got := len(tr.Path()); got != 3 {
		t.Errorf("Path length = %d, want 3", got)
	}
}

func TestTracker_ApplySegmentsStaysInArea(t *testing.T) {
	area := pdr.NewArea(10, 10)
	tr := NewTracker(pdr.NewProcessor(pdr.DefaultConfig(), area), nil, nil)
	tr.StartTracking(pdr.Position{X: 5, Y: 1})

	segs := []pathlog.Segment{
		pathlog.Straight{HeadingRange: pathlog.HeadingRange{Min: 0, Max: 0}, Distance: 5, Steps: 5},
	}

	points, err := tr.ApplySegments(segs)
	if err != nil {
		t.Fatalf("ApplySegments() error = %v", err)
	}
	if len(points) != 6 {
		t.Fatalf("got %d points, want 6", len(points))
	}

	for i, pos := range points {
		if !area.Contains(pos) {
			t.Errorf("point %d = %+v is outside the area", i, pos)
		}
	}

	end := tr.Latest().Position
	if math.Abs(end.X-5) > 1e-9 || math.Abs(end.Y) > 1e-9 {
		t.Errorf("Position = %+v, want (5, 0)", end)
	}
	if got := tr.Stats().PathPoints; got != 6 {
		t.Errorf("Stats().PathPoints = %d, want 6", got)
	}
}

type recordingObserver struct {
	started  int
	samples  []Sample
	snapshot []Snapshot
}

func (r *recordingObserver) Started(Snapshot) { r.started++ }

func (r *recordingObserver) Observed(s Sample, snap Snapshot) {
	r.samples = append(r.samples, s)
	r.snapshot = append(r.snapshot, snap)
}

func TestTracker_Observer(t *testing.T) {
	tr := newTestTracker(nil)
	obs := &recordingObserver{}
	tr.SetObserver(obs)

	tr.StartTracking(pdr.Position{})
	q := yaw(45)
	tr.Ingest(RotationSample(q, 0))
	for _, s := range gait(1, 1000) {
		tr.Ingest(s)
	}

	if obs.started != 1 {
		t.Errorf("started = %d, want 1", obs.started)
	}

	// Rotation samples are folded into the following accel samples
	if len(obs.samples) != 2 {
		t.Fatalf("observed %d samples, want 2", len(obs.samples))
	}
	if obs.samples[1].Rotation != q {
		t.Errorf("Rotation = %v, want %v", obs.samples[1].Rotation, q)
	}
	if obs.snapshot[1].StepCount != 1 {
		t.Errorf("StepCount = %d, want 1", obs.snapshot[1].StepCount)
	}

	tr.SetObserver(nil)
	for _, s := range gait(1, 2000) {
		tr.Ingest(s)
	}
	if len(obs.samples) != 2 {
		t.Errorf("observer still called after removal")
	}
}

func TestKind_String(t *testing.T) {
	if KindAccel.String() != "accel" || KindRotation.String() != "rotation" {
		t.Errorf("unexpected kind names %q %q", KindAccel, KindRotation)
	}
}
