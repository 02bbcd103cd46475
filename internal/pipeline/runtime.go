package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/greenwave-data/crossflow/internal/monitoring"
	"github.com/greenwave-data/crossflow/internal/store"
	"github.com/greenwave-data/crossflow/internal/timeutil"
	"github.com/greenwave-data/crossflow/internal/traffic"
)

// metricsInterval is the cadence of the periodic system_metrics samples.
const metricsInterval = 30 * time.Second

// Runtime owns the producer goroutines, the controller loop, and the
// periodic metrics sampler.
type Runtime struct {
	producers      []*Producer
	controller     *traffic.PhaseController
	db             *store.DB // nil disables metrics sampling
	clock          timeutil.Clock
	frameInterval  time.Duration
	controllerTick time.Duration

	wg sync.WaitGroup
}

// NewRuntime assembles the runtime. frameInterval is the per-approach
// frame cadence; controllerTick the decision cadence. db may be nil.
func NewRuntime(producers []*Producer, controller *traffic.PhaseController, db *store.DB, clock timeutil.Clock, frameInterval, controllerTick time.Duration) *Runtime {
	return &Runtime{
		producers:      producers,
		controller:     controller,
		db:             db,
		clock:          clock,
		frameInterval:  frameInterval,
		controllerTick: controllerTick,
	}
}

// Start launches all producers, the controller loop, and (when a store
// is attached) the metrics sampler. They run until the context is
// cancelled; Wait blocks until they have drained.
func (r *Runtime) Start(ctx context.Context) {
	for _, p := range r.producers {
		p := p
		ticker := r.clock.NewTicker(r.frameInterval)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer ticker.Stop()
			p.Run(ctx, ticker)
		}()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runController(ctx)
	}()

	if r.db != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runMetrics(ctx)
		}()
	}

	log.Printf("[Runtime] started %d producers, controller tick %s", len(r.producers), r.controllerTick)
}

func (r *Runtime) runController(ctx context.Context) {
	ticker := r.clock.NewTicker(r.controllerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ev := r.controller.Tick(); ev != nil {
				monitoring.Logf("[Runtime] phase change %s -> %s (%s)", ev.FromPhase, ev.ToPhase, ev.Reason)
			}
		}
	}
}

func (r *Runtime) runMetrics(ctx context.Context) {
	ticker := r.clock.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.sampleMetrics()
		}
	}
}

// sampleMetrics writes one snapshot of the runtime counters to the
// store. Failures are diagnostic only; sampling must never stall the
// pipeline.
func (r *Runtime) sampleMetrics() {
	var frames int64
	for _, p := range r.producers {
		frames += p.FramesProcessed()
	}
	now := r.clock.Now()
	if err := r.db.LogMetric(now, "frames_processed", float64(frames)); err != nil {
		monitoring.Logf("[Runtime] metric sample failed: %v", err)
	}
	if err := r.db.LogMetric(now, "signal_changes", float64(r.controller.Info().SignalChangeCount)); err != nil {
		monitoring.Logf("[Runtime] metric sample failed: %v", err)
	}
}

// Wait blocks until all runtime goroutines have exited.
func (r *Runtime) Wait() {
	r.wg.Wait()
	log.Printf("[Runtime] stopped")
}
