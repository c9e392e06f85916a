package session

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teslashibe/go-pdr/internal/pathlog"
	"github.com/teslashibe/go-pdr/internal/pdr"
	"github.com/teslashibe/go-pdr/internal/tracker"
)

// walk drives a tracker with the recorder attached and returns both.
func walk(t *testing.T, steps int) (*tracker.Tracker, *Recorder) {
	t.Helper()

	rec := NewRecorder()
	tr := tracker.NewTracker(pdr.NewProcessor(pdr.DefaultConfig(), pdr.NewCenteredArea(20, 20)), nil, nil)
	tr.SetObserver(rec)
	tr.StartTracking(pdr.Position{})
	tr.Ingest(tracker.RotationSample(pdr.QuaternionFromYaw(math.Pi/2), 0))

	ts := int64(1000)
	for i := 0; i < steps; i++ {
		ts += 500
		tr.Ingest(tracker.AccelSample([3]float64{0, 0, 9.8}, ts))
		ts += 20
		tr.Ingest(tracker.AccelSample([3]float64{0, 0, 13}, ts))
	}
	return tr, rec
}

func buildRecord(tr *tracker.Tracker, rec *Recorder, name string) *Record {
	return rec.Build(Snapshot{
		Name:     name,
		Path:     tr.Path(),
		Segments: tr.Segments(),
		Bounds:   pdr.NewCenteredArea(20, 20),
		Final:    tr.Latest(),
	})
}

func TestRecorder_Series(t *testing.T) {
	tr, rec := walk(t, 3)

	if rec.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", rec.Len())
	}

	r := buildRecord(tr, rec, "aisle 4")

	if len(r.Raw.Accel) != 18 {
		t.Errorf("len(Accel) = %d, want 18", len(r.Raw.Accel))
	}
	if len(r.Raw.Rotation) != 24 {
		t.Errorf("len(Rotation) = %d, want 24", len(r.Raw.Rotation))
	}
	if len(r.PDR.Positions) != 12 {
		t.Errorf("len(Positions) = %d, want 12", len(r.PDR.Positions))
	}
	if len(r.PDR.StepEvents) != 3 {
		t.Errorf("StepEvents = %v, want 3 events", r.PDR.StepEvents)
	}
	if r.PDR.StepEvents[0] != 1520 {
		t.Errorf("first step at %d, want 1520", r.PDR.StepEvents[0])
	}

	last := r.PDR.Position(5)
	if math.Abs(last.X-2.1) > 1e-9 {
		t.Errorf("last position = %+v, want x 2.1", last)
	}

	if r.Name != "aisle 4" || r.StepCount != 3 || r.SampleCount != 6 {
		t.Errorf("unexpected metadata %+v", r.Metadata)
	}
	if math.Abs(r.TotalDistance-2.1) > 1e-9 {
		t.Errorf("TotalDistance = %v, want 2.1", r.TotalDistance)
	}
	if len(r.Path) != 4 {
		t.Errorf("len(Path) = %d, want 4", len(r.Path))
	}

	segs, err := r.DecodeSegments()
	if err != nil {
		t.Fatalf("DecodeSegments() error = %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if s, ok := segs[0].(pathlog.Straight); !ok || s.Steps != 3 {
		t.Errorf("segment = %+v, want 3-step straight", segs[0])
	}
}

func TestRecorder_RestartClears(t *testing.T) {
	tr, rec := walk(t, 2)

	tr.StartTracking(pdr.Position{})
	if rec.Len() != 0 {
		t.Errorf("Len() after restart = %d, want 0", rec.Len())
	}
}

func TestRecorder_IgnoresPausedSamples(t *testing.T) {
	tr, rec := walk(t, 1)
	tr.PauseTracking()

	tr.Ingest(tracker.AccelSample([3]float64{0, 0, 9.8}, 5000))
	if rec.Len() != 2 {
		t.Errorf("Len() = %d, want 2", rec.Len())
	}
}

func TestRecorder_DefaultName(t *testing.T) {
	r := NewRecorder().Build(Snapshot{})
	if r.Name == "" {
		t.Error("expected a generated name")
	}
	if r.Raw.Timestamps == nil || r.Segments == nil {
		t.Error("empty series should encode as empty arrays")
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	tr, rec := walk(t, 3)
	r := buildRecord(tr, rec, "first")

	if err := store.Save(r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if r.ID == "" {
		t.Fatal("Save() should assign an ID")
	}

	loaded, err := store.Load(r.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Name != "first" || loaded.StepCount != 3 {
		t.Errorf("loaded metadata %+v", loaded.Metadata)
	}
	if len(loaded.Raw.Accel) != len(r.Raw.Accel) {
		t.Errorf("loaded %d accel values, want %d", len(loaded.Raw.Accel), len(r.Raw.Accel))
	}
	if loaded.Config != pdr.DefaultConfig() {
		t.Errorf("Config = %+v", loaded.Config)
	}
	if loaded.Bounds != pdr.NewCenteredArea(20, 20) {
		t.Errorf("Bounds = %+v", loaded.Bounds)
	}
}

func TestFileStore_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"morning", "noon", "evening"} {
		r := &Record{Metadata: Metadata{Name: name, StartTime: base.Add(time.Duration(i) * 3 * time.Hour)}}
		if err := store.Save(r); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	// Stray files are ignored
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644)

	list, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(list) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(list))
	}
	want := []string{"evening", "noon", "morning"}
	for i, m := range list {
		if m.Name != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, m.Name, want[i])
		}
	}
}

func TestFileStore_Delete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	r := &Record{Metadata: Metadata{Name: "gone"}}
	if err := store.Save(r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(r.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.Load(r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_RejectsForeignIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	for _, id := range []string{"../etc/passwd", "", "not-a-uuid"} {
		if _, err := store.Load(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q) error = %v, want ErrNotFound", id, err)
		}
		if err := store.Delete(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(%q) error = %v, want ErrNotFound", id, err)
		}
	}

	if err := store.Save(&Record{Metadata: Metadata{ID: "../escape"}}); err == nil {
		t.Error("Save() with a non-UUID id should fail")
	}
}
