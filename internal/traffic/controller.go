package traffic

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenwave-data/crossflow/internal/timeutil"
)

// TimingParams is the green-time envelope the controller works within.
type TimingParams struct {
	// MinGreen is the shortest green a phase may hold, even when empty.
	MinGreen time.Duration
	// MaxGreen caps the green regardless of demand.
	MaxGreen time.Duration
	// BaseGreen is the demand-free green duration.
	BaseGreen time.Duration
	// ExtensionPerVehicle lengthens the green per waiting vehicle on the
	// green pair.
	ExtensionPerVehicle time.Duration
	// PairAggregate combines the two approaches of a pair into one
	// demand figure: "sum" or "max".
	PairAggregate string
}

// DefaultTimingParams returns the production timing envelope.
func DefaultTimingParams() TimingParams {
	return TimingParams{
		MinGreen:            6 * time.Second,
		MaxGreen:            15 * time.Second,
		BaseGreen:           8 * time.Second,
		ExtensionPerVehicle: time.Second,
		PairAggregate:       "sum",
	}
}

// Validate checks the envelope for internal consistency. The controller
// refuses to start with an inconsistent envelope.
func (p TimingParams) Validate() error {
	if p.MinGreen <= 0 {
		return fmt.Errorf("min green must be positive, got %s", p.MinGreen)
	}
	if p.MinGreen > p.MaxGreen {
		return fmt.Errorf("min green %s exceeds max green %s", p.MinGreen, p.MaxGreen)
	}
	if p.BaseGreen < p.MinGreen || p.BaseGreen > p.MaxGreen {
		return fmt.Errorf("base green %s outside [%s, %s]", p.BaseGreen, p.MinGreen, p.MaxGreen)
	}
	if p.ExtensionPerVehicle < 0 {
		return fmt.Errorf("extension per vehicle must be non-negative, got %s", p.ExtensionPerVehicle)
	}
	if p.PairAggregate != "sum" && p.PairAggregate != "max" {
		return fmt.Errorf("pair aggregate must be \"sum\" or \"max\", got %q", p.PairAggregate)
	}
	return nil
}

// Transition reasons recorded on SignalChangeEvent.
const (
	ReasonTimerExpired = "timer_expired"
	ReasonEarlyClear   = "early_clear"
)

// SignalChangeEvent records one phase transition.
type SignalChangeEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	FromPhase Phase     `json:"from_phase"`
	ToPhase   Phase     `json:"to_phase"`
	// Reason is "timer_expired" or "early_clear".
	Reason string `json:"reason"`
	// GreenDuration is how long the outgoing phase held the green.
	GreenDuration time.Duration `json:"green_duration"`
	// GreenPairCount and RedPairCount are the demand figures at the
	// moment of the decision, for the outgoing green and red pairs.
	GreenPairCount int `json:"green_pair_count"`
	RedPairCount   int `json:"red_pair_count"`
}

// PhaseInfo is the controller's published view of the current phase.
type PhaseInfo struct {
	Phase Phase `json:"phase"`
	// Elapsed is the time spent in the current phase so far.
	Elapsed time.Duration `json:"elapsed"`
	// TargetGreen is the currently computed green duration for this
	// phase; it moves as demand on the green pair changes.
	TargetGreen time.Duration `json:"target_green"`
	// GreenPairCount and RedPairCount are the current demand figures.
	GreenPairCount int `json:"green_pair_count"`
	RedPairCount   int `json:"red_pair_count"`
	// SignalChangeCount is the total number of transitions since the
	// controller started.
	SignalChangeCount int `json:"signal_change_count"`
}

// PhaseController owns the two-phase signal state machine. It starts in
// EW_GREEN and alternates strictly: every transition goes to the
// opposite phase. Tick drives it; the caller decides the cadence.
type PhaseController struct {
	mu sync.Mutex

	agg    *Aggregator
	clock  timeutil.Clock
	params TimingParams

	phase         Phase
	phaseStart    time.Time
	signalChanges int

	// onChange, when set, observes every emitted transition event.
	// Called outside the controller lock.
	onChange func(SignalChangeEvent)
}

// NewPhaseController creates a controller over the aggregator. The
// envelope must validate. The controller immediately claims EW_GREEN on
// the aggregator's signals.
func NewPhaseController(agg *Aggregator, clock timeutil.Clock, params TimingParams, onChange func(SignalChangeEvent)) (*PhaseController, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("phase controller: %w", err)
	}
	c := &PhaseController{
		agg:        agg,
		clock:      clock,
		params:     params,
		phase:      PhaseEWGreen,
		phaseStart: clock.Now(),
		onChange:   onChange,
	}
	agg.SetPhase(PhaseEWGreen)
	return c, nil
}

// GreenTimeFor computes the green duration for a demand figure:
// clamp(base + extension*count, min, max).
func (c *PhaseController) GreenTimeFor(count int) time.Duration {
	g := c.params.BaseGreen + time.Duration(count)*c.params.ExtensionPerVehicle
	if g < c.params.MinGreen {
		g = c.params.MinGreen
	}
	if g > c.params.MaxGreen {
		g = c.params.MaxGreen
	}
	return g
}

// Tick evaluates the transition rules once. It returns the emitted event
// when a transition fired, or nil when the phase holds. The timer rule is
// checked before the early-clear rule; when both hold on the same tick
// the event reason is "timer_expired".
func (c *PhaseController) Tick() *SignalChangeEvent {
	c.mu.Lock()

	greenCount, redCount := c.agg.PhasePairCounts(c.phase, c.params.PairAggregate)
	elapsed := c.clock.Since(c.phaseStart)
	target := c.GreenTimeFor(greenCount)

	var reason string
	switch {
	case elapsed >= target:
		reason = ReasonTimerExpired
	case greenCount == 0 && redCount > 0 && elapsed >= c.params.MinGreen:
		reason = ReasonEarlyClear
	default:
		c.mu.Unlock()
		return nil
	}

	from := c.phase
	to := from.Other()
	now := c.clock.Now()
	c.phase = to
	c.phaseStart = now
	c.signalChanges++
	c.mu.Unlock()

	c.agg.SetPhase(to)

	event := SignalChangeEvent{
		ID:             uuid.NewString(),
		Timestamp:      now,
		FromPhase:      from,
		ToPhase:        to,
		Reason:         reason,
		GreenDuration:  elapsed,
		GreenPairCount: greenCount,
		RedPairCount:   redCount,
	}
	log.Printf("[PhaseController] %s -> %s after %s (%s, green pair %d, red pair %d)",
		from, to, elapsed.Round(time.Millisecond), reason, greenCount, redCount)

	if c.onChange != nil {
		c.onChange(event)
	}
	return &event
}

// Info returns the controller's current phase view, with the target
// green recomputed from live demand.
func (c *PhaseController) Info() PhaseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	greenCount, redCount := c.agg.PhasePairCounts(c.phase, c.params.PairAggregate)
	return PhaseInfo{
		Phase:             c.phase,
		Elapsed:           c.clock.Since(c.phaseStart),
		TargetGreen:       c.GreenTimeFor(greenCount),
		GreenPairCount:    greenCount,
		RedPairCount:      redCount,
		SignalChangeCount: c.signalChanges,
	}
}

// Phase returns the current phase.
func (c *PhaseController) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}
