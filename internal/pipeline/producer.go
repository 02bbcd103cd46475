// Package pipeline runs the per-approach detection producers and the
// signal controller loop, and wires their outputs into the shared
// aggregator and the store.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/greenwave-data/crossflow/internal/monitoring"
	"github.com/greenwave-data/crossflow/internal/store"
	"github.com/greenwave-data/crossflow/internal/timeutil"
	"github.com/greenwave-data/crossflow/internal/traffic"
	"github.com/greenwave-data/crossflow/internal/vision"
)

// FrameSource supplies frames for one approach. Implementations may
// block until a frame is available; they must honor context
// cancellation.
type FrameSource interface {
	NextFrame(ctx context.Context) (*vision.Frame, error)
}

// Producer drives one approach: it pulls frames at the camera cadence,
// runs them through the detector, and publishes the stable count into
// the aggregator. Detections are persisted only for frames that saw
// vehicles.
type Producer struct {
	direction traffic.Direction
	src       FrameSource
	detector  *vision.Detector
	agg       *traffic.Aggregator
	db        *store.DB // nil disables persistence
	clock     timeutil.Clock

	frames atomic.Int64
}

// NewProducer wires a producer for one approach. db may be nil.
func NewProducer(direction traffic.Direction, src FrameSource, detector *vision.Detector, agg *traffic.Aggregator, db *store.DB, clock timeutil.Clock) (*Producer, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("new producer: unknown direction %q", direction)
	}
	return &Producer{
		direction: direction,
		src:       src,
		detector:  detector,
		agg:       agg,
		db:        db,
		clock:     clock,
	}, nil
}

// Direction returns the approach this producer serves.
func (p *Producer) Direction() traffic.Direction { return p.direction }

// Detector returns the producer's detector, for status reporting.
func (p *Producer) Detector() *vision.Detector { return p.detector }

// FramesProcessed returns how many frames this producer has pushed
// through its detector.
func (p *Producer) FramesProcessed() int64 { return p.frames.Load() }

// Step processes exactly one frame. Frame acquisition failures other
// than cancellation are absorbed and logged; a camera hiccup must not
// kill the approach.
func (p *Producer) Step(ctx context.Context) error {
	frame, err := p.src.NextFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Logf("[Producer %s] frame acquisition failed: %v", p.direction, err)
		return nil
	}

	result, err := p.detector.Process(frame)
	if err != nil {
		monitoring.Logf("[Producer %s] frame rejected: %v", p.direction, err)
		return nil
	}
	p.frames.Add(1)

	if err := p.agg.UpdateCount(p.direction, result.StableCount, p.clock.Now()); err != nil {
		return fmt.Errorf("publish count: %w", err)
	}

	if p.db != nil && result.RawCount > 0 {
		signal := p.agg.Signal(p.direction)
		if err := p.db.LogDetection(p.clock.Now(), p.direction, result.RawCount, signal); err != nil {
			// Persistence failures must not stall detection.
			monitoring.Logf("[Producer %s] detection log failed: %v", p.direction, err)
		}
	}
	return nil
}

// Run processes frames at the given ticker cadence until the context is
// cancelled.
func (p *Producer) Run(ctx context.Context, ticker timeutil.Ticker) {
	log.Printf("[Producer %s] started", p.direction)
	defer log.Printf("[Producer %s] stopped", p.direction)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := p.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[Producer %s] step failed: %v", p.direction, err)
			}
		}
	}
}
