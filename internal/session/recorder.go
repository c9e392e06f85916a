package session

import (
	"sync"
	"time"

	"github.com/teslashibe/go-pdr/internal/pathlog"
	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/tracker"
)

// Recorder accumulates the series of the current tracking session. It is
// installed as the tracker's observer; every StartTracking begins a new
// recording. Samples are only kept while tracking.
type Recorder struct {
	mu        sync.Mutex
	startTime time.Time
	config    pdr.Config
	raw       RawSeries
	series    Series
	lastSteps int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Started resets the recording for a new session.
func (r *Recorder) Started(snap tracker.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startTime = time.Now()
	r.config = snap.Config
	r.raw = RawSeries{}
	r.series = Series{}
	r.lastSteps = snap.StepCount
}

// Observed appends one sample and its resulting snapshot.
func (r *Recorder) Observed(s tracker.Sample, snap tracker.Snapshot) {
	if !snap.Tracking {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.raw.Timestamps = append(r.raw.Timestamps, s.Timestamp)
	r.raw.Accel = append(r.raw.Accel, s.Accel[:]...)
	r.raw.Rotation = append(r.raw.Rotation, s.Rotation[:]...)

	r.series.Timestamps = append(r.series.Timestamps, s.Timestamp)
	r.series.Positions = append(r.series.Positions, snap.Position.X, snap.Position.Y)
	r.series.StepCounts = append(r.series.StepCounts, snap.StepCount)
	r.series.Distances = append(r.series.Distances, snap.TotalDistance)
	r.series.Headings = append(r.series.Headings, snap.Heading.Heading)
	r.series.HeadingConfidences = append(r.series.HeadingConfidences, snap.Heading.Confidence)
	r.series.Confidences = append(r.series.Confidences, snap.Confidence)

	if snap.StepCount > r.lastSteps {
		r.series.StepEvents = append(r.series.StepEvents, s.Timestamp)
	}
	r.lastSteps = snap.StepCount
	r.config = snap.Config
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.raw.Timestamps)
}

// Snapshot holds what Build needs from the tracker besides the series.
type Snapshot struct {
	Name      string
	Path      []pdr.Position
	Segments  []pathlog.Segment
	Bounds    pdr.AreaBounds
	Warehouse bool
	Final     tracker.Snapshot
}

// Build copies the recording into a Record. The recorder keeps its state,
// so a session can be saved more than once while it continues.
func (r *Recorder) Build(in Snapshot) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := time.Now()
	start := r.startTime
	if start.IsZero() {
		start = end
	}

	name := in.Name
	if name == "" {
		name = "session " + start.Format("2006-01-02 15:04:05")
	}

	path := make([]pdr.Position, len(in.Path))
	copy(path, in.Path)

	return &Record{
		Metadata: Metadata{
			Name:          name,
			StartTime:     start,
			EndTime:       end,
			DurationMs:    end.Sub(start).Milliseconds(),
			Bounds:        in.Bounds,
			Warehouse:     in.Warehouse,
			Config:        r.config,
			SampleCount:   len(r.raw.Timestamps),
			StepCount:     in.Final.StepCount,
			TotalDistance: in.Final.TotalDistance,
		},
		Raw: RawSeries{
			Timestamps: cloneSlice(r.raw.Timestamps),
			Accel:      cloneSlice(r.raw.Accel),
			Rotation:   cloneSlice(r.raw.Rotation),
		},
		PDR: Series{
			Timestamps:         cloneSlice(r.series.Timestamps),
			Positions:          cloneSlice(r.series.Positions),
			StepCounts:         cloneSlice(r.series.StepCounts),
			Distances:          cloneSlice(r.series.Distances),
			Headings:           cloneSlice(r.series.Headings),
			HeadingConfidences: cloneSlice(r.series.HeadingConfidences),
			Confidences:        cloneSlice(r.series.Confidences),
			StepEvents:         cloneSlice(r.series.StepEvents),
		},
		Path:     path,
		Segments: pathlog.Encode(in.Segments),
	}
}

func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
