package vision

import (
	"fmt"
	"sync"

	"github.com/greenwave-data/crossflow/internal/config"
)

// FrameResult is the outcome of processing one frame through a Detector.
type FrameResult struct {
	// RawCount is the number of detections in this frame.
	RawCount int
	// StableCount is the windowed count the controller should act on.
	StableCount int
	// Detections are the accepted blobs for this frame.
	Detections []Detection
	// Warming is true while the background model is still settling and
	// counts are necessarily zero.
	Warming bool
}

// Detector runs the full per-approach pipeline: segment, extract,
// stabilize. One Detector per approach; Process is safe for concurrent
// callers though each approach drives it from a single producer.
type Detector struct {
	segmenter  *MotionSegmenter
	extractor  *BlobExtractor
	stabilizer *CountStabilizer

	mu     sync.RWMutex
	latest FrameResult
}

// NewDetector builds a Detector from the tuning configuration.
func NewDetector(cfg *config.Config) (*Detector, error) {
	seg, err := NewMotionSegmenter(cfg.GetCameraWidth(), cfg.GetCameraHeight(), SegmenterParams{
		UpdateFraction:    cfg.GetBackgroundUpdateFraction(),
		VarianceThreshold: cfg.GetVarianceThreshold(),
		WarmupFrames:      cfg.GetWarmupFrames(),
	})
	if err != nil {
		return nil, fmt.Errorf("new detector: %w", err)
	}

	return &Detector{
		segmenter: seg,
		extractor: NewBlobExtractor(ExtractorParams{
			KernelRadius:   cfg.GetKernelRadius(),
			MinArea:        cfg.GetMinVehicleArea(),
			MaxArea:        cfg.GetMaxVehicleArea(),
			MinAspectRatio: cfg.GetMinAspectRatio(),
			MaxAspectRatio: cfg.GetMaxAspectRatio(),
		}),
		stabilizer: NewCountStabilizer(cfg.GetStabilizationWindow()),
	}, nil
}

// Process runs one frame through the pipeline and returns the result.
// During warm-up the stabilizer still accumulates the (zero) counts so
// the window is primed when foreground starts flowing.
func (d *Detector) Process(frame *Frame) (FrameResult, error) {
	mask, err := d.segmenter.Segment(frame)
	if err != nil {
		return FrameResult{}, fmt.Errorf("process frame: %w", err)
	}

	detections := d.extractor.Extract(mask)
	stable := d.stabilizer.Push(len(detections))

	result := FrameResult{
		RawCount:    len(detections),
		StableCount: stable,
		Detections:  detections,
		Warming:     d.segmenter.Warming(),
	}

	d.mu.Lock()
	d.latest = result
	d.mu.Unlock()
	return result, nil
}

// Latest returns the most recent frame result. The zero FrameResult is
// returned before any frame has been processed.
func (d *Detector) Latest() FrameResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}
