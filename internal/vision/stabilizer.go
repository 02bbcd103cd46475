package vision

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// CountStabilizer smooths per-frame vehicle counts over a fixed window so
// that a single dropped or doubled frame does not swing the signal
// controller. Capacity is fixed at construction; the stable count is the
// rounded mean of however many samples have arrived so far.
type CountStabilizer struct {
	mu       sync.Mutex
	samples  []float64
	head     int
	size     int
	capacity int
}

// NewCountStabilizer creates a stabilizer with the given window size.
// A non-positive window falls back to 3.
func NewCountStabilizer(window int) *CountStabilizer {
	if window < 1 {
		window = 3
	}
	return &CountStabilizer{
		samples:  make([]float64, window),
		capacity: window,
	}
}

// Push records a raw per-frame count, evicting the oldest sample once the
// window is full, and returns the updated stable count.
func (s *CountStabilizer) Push(count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[s.head] = float64(count)
	s.head = (s.head + 1) % s.capacity
	if s.size < s.capacity {
		s.size++
	}
	return s.stableLocked()
}

// Stable returns the current stable count without adding a sample.
// An empty window yields 0.
func (s *CountStabilizer) Stable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stableLocked()
}

// Size returns the number of samples currently held.
func (s *CountStabilizer) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Reset discards all samples.
func (s *CountStabilizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = 0
	s.size = 0
}

func (s *CountStabilizer) stableLocked() int {
	if s.size == 0 {
		return 0
	}
	mean := stat.Mean(s.samples[:s.size], nil)
	return int(math.Round(mean))
}
