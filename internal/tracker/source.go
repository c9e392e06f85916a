// Package tracker serializes access to one PDR processor and fans its
// snapshots out to subscribers.
package tracker

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by a Source that will produce no more samples.
var ErrSourceClosed = errors.New("tracker: source closed")

// Kind distinguishes the two sensor streams.
type Kind int

const (
	KindAccel Kind = iota
	KindRotation
)

func (k Kind) String() string {
	if k == KindRotation {
		return "rotation"
	}
	return "accel"
}

// Sample is one reading from either sensor stream. Accel samples carry the
// latest rotation vector once they have been ingested.
type Sample struct {
	Kind      Kind
	Accel     [3]float64 // m/s², linear acceleration
	Rotation  [4]float64 // quaternion (x, y, z, w)
	Timestamp int64      // ms
}

// AccelSample builds an acceleration sample.
func AccelSample(accel [3]float64, timestamp int64) Sample {
	return Sample{Kind: KindAccel, Accel: accel, Timestamp: timestamp}
}

// RotationSample builds a rotation-vector sample.
func RotationSample(q [4]float64, timestamp int64) Sample {
	return Sample{Kind: KindRotation, Rotation: q, Timestamp: timestamp}
}

// Source provides sensor samples
type Source interface {
	// Next blocks until a sample is available or ctx is done
	Next(ctx context.Context) (Sample, error)

	// Close releases the underlying feed
	Close() error

	// Healthy returns true if the source is operational
	Healthy() bool

	// Name returns the source type name
	Name() string
}

// Observer is notified under the tracker lock, in ingestion order.
type Observer interface {
	Started(snap Snapshot)
	Observed(sample Sample, snap Snapshot)
}
