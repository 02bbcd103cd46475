package vision

import (
	"fmt"
	"sync"

	"github.com/greenwave-data/crossflow/internal/monitoring"
)

// SegmenterParams tunes the adaptive background model.
type SegmenterParams struct {
	// UpdateFraction is the EMA alpha applied to the per-pixel mean and
	// variance on background observations. Typical: 0.02.
	UpdateFraction float64

	// VarianceThreshold scales the per-pixel variance to form the
	// foreground decision boundary: a pixel is foreground when its
	// squared deviation from the mean exceeds VarianceThreshold times
	// the modelled variance. Typical: 25.
	VarianceThreshold float64

	// WarmupFrames is the number of initial frames during which the
	// model absorbs observations but reports an all-background mask.
	// Emitting foreground before the model settles would flag the
	// entire scene.
	WarmupFrames int
}

// DefaultSegmenterParams returns the production defaults.
func DefaultSegmenterParams() SegmenterParams {
	return SegmenterParams{
		UpdateFraction:    0.02,
		VarianceThreshold: 25,
		WarmupFrames:      30,
	}
}

// backgroundCell is the per-pixel background statistic pair.
type backgroundCell struct {
	mean     float64
	variance float64
}

// MotionSegmenter maintains a per-pixel adaptive background model and
// classifies incoming frames into foreground masks. Safe for concurrent
// use; in practice each approach owns one segmenter.
type MotionSegmenter struct {
	mu sync.Mutex

	width  int
	height int
	cells  []backgroundCell

	params      SegmenterParams
	framesSeen  int
	initialized bool
}

// NewMotionSegmenter creates a segmenter for frames of the given
// dimensions. Non-positive or missing params fall back to defaults.
func NewMotionSegmenter(width, height int, params SegmenterParams) (*MotionSegmenter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid segmenter dimensions %dx%d", width, height)
	}
	def := DefaultSegmenterParams()
	if params.UpdateFraction <= 0 || params.UpdateFraction > 1 {
		params.UpdateFraction = def.UpdateFraction
	}
	if params.VarianceThreshold <= 0 {
		params.VarianceThreshold = def.VarianceThreshold
	}
	if params.WarmupFrames < 0 {
		params.WarmupFrames = def.WarmupFrames
	}
	return &MotionSegmenter{
		width:  width,
		height: height,
		cells:  make([]backgroundCell, width*height),
		params: params,
	}, nil
}

// Segment classifies a frame against the background model and advances
// the model. During warm-up the model updates but the returned mask is
// all background. The frame must match the segmenter's dimensions.
func (s *MotionSegmenter) Segment(frame *Frame) (*Mask, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	if frame.Width != s.width || frame.Height != s.height {
		return nil, fmt.Errorf("segment: frame is %dx%d, model is %dx%d",
			frame.Width, frame.Height, s.width, s.height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alpha := s.params.UpdateFraction
	threshold := s.params.VarianceThreshold
	warming := s.framesSeen < s.params.WarmupFrames

	// First frame seeds the model directly so the mean does not have to
	// climb from zero.
	if !s.initialized {
		for i, v := range frame.Pix {
			s.cells[i] = backgroundCell{mean: float64(v), variance: 1}
		}
		s.initialized = true
		s.framesSeen++
		monitoring.Logf("[MotionSegmenter] model seeded from first frame (%dx%d, warmup %d frames)",
			s.width, s.height, s.params.WarmupFrames)
		return NewMask(s.width, s.height), nil
	}

	mask := NewMask(s.width, s.height)
	for i, v := range frame.Pix {
		cell := &s.cells[i]
		diff := float64(v) - cell.mean
		sq := diff * diff

		// Variance floor of 1 keeps a perfectly static pixel from
		// collapsing the decision boundary to zero.
		foreground := sq > threshold*(cell.variance+1)

		if foreground && !warming {
			// Foreground pixels do not update the model; absorbing a
			// stopped vehicle into the background would make it vanish.
			mask.Bits[i] = true
			continue
		}

		cell.mean += alpha * diff
		cell.variance = (1-alpha)*cell.variance + alpha*sq
	}

	s.framesSeen++
	if warming && s.framesSeen == s.params.WarmupFrames {
		monitoring.Logf("[MotionSegmenter] warmup complete after %d frames", s.framesSeen)
	}
	return mask, nil
}

// FramesSeen returns how many frames the model has absorbed.
func (s *MotionSegmenter) FramesSeen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesSeen
}

// Warming reports whether the segmenter is still in its warm-up window.
func (s *MotionSegmenter) Warming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesSeen < s.params.WarmupFrames
}

// Reset clears the model and restarts warm-up. Used when the camera view
// changes (for example after a repositioning) and the learned background
// no longer applies.
func (s *MotionSegmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cells {
		s.cells[i] = backgroundCell{}
	}
	s.framesSeen = 0
	s.initialized = false
	monitoring.Logf("[MotionSegmenter] model reset")
}
