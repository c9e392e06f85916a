package pdr

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	strideBufferSize  = 50
	strideMinSamples  = 10
	weinbergK         = 0.4
	strideHistorySize = 10
	strideHistoryMs   = 1000
)

// StrideEstimator applies the Weinberg model to a rolling buffer of step
// magnitudes.
type StrideEstimator struct {
	defaultLength float64

	buffer []float64

	history         []float64
	lastHistoryTime int64
}

// NewStrideEstimator creates an estimator that falls back to
// cfg.DefaultStrideLength until enough samples are buffered.
func NewStrideEstimator(cfg Config) *StrideEstimator {
	return &StrideEstimator{
		defaultLength: cfg.DefaultStrideLength,
		buffer:        make([]float64, 0, strideBufferSize),
		history:       make([]float64, 0, strideHistorySize),
	}
}

// Estimate records the step sample and returns the stride estimate.
func (s *StrideEstimator) Estimate(accel [3]float64, timestamp int64) StrideData {
	s.push(Magnitude(accel))

	length := s.weinberg()
	confidence := s.confidence()

	if timestamp-s.lastHistoryTime > strideHistoryMs {
		s.history = appendBounded(s.history, length, strideHistorySize)
		s.lastHistoryTime = timestamp
	}

	return StrideData{Length: length, Confidence: confidence}
}

func (s *StrideEstimator) push(magnitude float64) {
	s.buffer = appendBounded(s.buffer, magnitude, strideBufferSize)
}

// weinberg computes K * (max - min)^0.25 over the buffer.
func (s *StrideEstimator) weinberg() float64 {
	if len(s.buffer) < strideMinSamples {
		return s.defaultLength
	}
	amplitude := floats.Max(s.buffer) - floats.Min(s.buffer)
	return weinbergK * math.Pow(amplitude, 0.25)
}

func (s *StrideEstimator) confidence() float64 {
	conf := 0.5
	if len(s.buffer) == 0 {
		return conf
	}

	variance := stat.PopVariance(s.buffer, nil)
	amplitude := floats.Max(s.buffer) - floats.Min(s.buffer)

	if variance > 0.5 {
		conf += 0.2
	}
	if variance > 1.0 {
		conf += 0.2
	}
	if amplitude > 2.0 {
		conf += 0.1
	}
	if amplitude > 4.0 {
		conf += 0.1
	}

	return Clamp(conf, 0, 1)
}

// Samples returns how many magnitudes are buffered.
func (s *StrideEstimator) Samples() int {
	return len(s.buffer)
}

// MeanStride averages the once-per-second stride history, or returns the
// default length when the history is empty.
func (s *StrideEstimator) MeanStride() float64 {
	if len(s.history) == 0 {
		return s.defaultLength
	}
	return stat.Mean(s.history, nil)
}

// UpdateConfig swaps the default stride length.
func (s *StrideEstimator) UpdateConfig(cfg Config) {
	s.defaultLength = cfg.DefaultStrideLength
}

// Reset clears the buffer and stride history.
func (s *StrideEstimator) Reset() {
	s.buffer = s.buffer[:0]
	s.history = s.history[:0]
	s.lastHistoryTime = 0
}

// appendBounded appends v and drops the oldest entries beyond limit.
func appendBounded(buf []float64, v float64, limit int) []float64 {
	buf = append(buf, v)
	if len(buf) > limit {
		// Shift instead of slice to keep the backing array bounded
		copy(buf, buf[len(buf)-limit:])
		buf = buf[:limit]
	}
	return buf
}
