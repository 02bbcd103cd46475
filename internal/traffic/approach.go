// Package traffic holds the intersection state shared between the
// detection producers and the signal phase controller: per-approach
// vehicle counts and signal colors, and the state machine that decides
// when the green moves.
package traffic

import (
	"fmt"
	"sync"
	"time"
)

// Direction identifies an intersection approach by compass direction.
type Direction string

const (
	North Direction = "North"
	South Direction = "South"
	East  Direction = "East"
	West  Direction = "West"
)

// Directions lists all approaches in a stable order.
var Directions = []Direction{North, South, East, West}

// Valid reports whether d is one of the four approaches.
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West:
		return true
	}
	return false
}

// Signal is the color shown to an approach.
type Signal string

const (
	Red   Signal = "RED"
	Green Signal = "GREEN"
)

// Phase names which approach pair currently holds the green.
type Phase string

const (
	PhaseEWGreen Phase = "EW_GREEN"
	PhaseNSGreen Phase = "NS_GREEN"
)

// Other returns the opposite phase.
func (p Phase) Other() Phase {
	if p == PhaseEWGreen {
		return PhaseNSGreen
	}
	return PhaseEWGreen
}

// GreenPair returns the two approaches that hold the green in this phase.
func (p Phase) GreenPair() [2]Direction {
	if p == PhaseEWGreen {
		return [2]Direction{East, West}
	}
	return [2]Direction{North, South}
}

// RedPair returns the two approaches held at red in this phase.
func (p Phase) RedPair() [2]Direction {
	return p.Other().GreenPair()
}

// ApproachState is the published state of one approach.
type ApproachState struct {
	Direction    Direction `json:"direction"`
	VehicleCount int       `json:"vehicle_count"`
	Signal       Signal    `json:"signal"`
	// LastUpdate is when the count was last written; the zero time means
	// no producer has reported yet.
	LastUpdate time.Time `json:"last_update"`
}

// Aggregator holds the latest state for all four approaches. Producers
// overwrite counts (single slot, last write wins, no queueing) and the
// controller overwrites signals; readers get a consistent snapshot of
// all four under one lock.
type Aggregator struct {
	mu     sync.RWMutex
	states map[Direction]*ApproachState
}

// NewAggregator creates an aggregator with all approaches at zero
// vehicles. Signals start consistent with the initial east-west green.
func NewAggregator() *Aggregator {
	a := &Aggregator{states: make(map[Direction]*ApproachState, len(Directions))}
	for _, d := range Directions {
		a.states[d] = &ApproachState{Direction: d, Signal: Red}
	}
	a.applyPhase(PhaseEWGreen)
	return a
}

// UpdateCount publishes a new stable vehicle count for an approach.
// Negative counts are clamped to zero; an unknown direction is an error.
func (a *Aggregator) UpdateCount(d Direction, count int, now time.Time) error {
	if !d.Valid() {
		return fmt.Errorf("update count: unknown direction %q", d)
	}
	if count < 0 {
		count = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.states[d]
	st.VehicleCount = count
	st.LastUpdate = now
	return nil
}

// Count returns the latest vehicle count for an approach.
func (a *Aggregator) Count(d Direction) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if st, ok := a.states[d]; ok {
		return st.VehicleCount
	}
	return 0
}

// Signal returns the current signal color for an approach.
func (a *Aggregator) Signal(d Direction) Signal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if st, ok := a.states[d]; ok {
		return st.Signal
	}
	return Red
}

// PairCount combines the counts of the two approaches in a pair using
// the given aggregation mode ("sum" or "max"). Unknown modes sum.
func (a *Aggregator) PairCount(pair [2]Direction, mode string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pairCountLocked(pair, mode)
}

// PhasePairCounts returns the demand for the phase's green pair and red
// pair read under a single lock, so a decision made on the result sees
// one consistent view of all four approaches.
func (a *Aggregator) PhasePairCounts(p Phase, mode string) (green, red int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pairCountLocked(p.GreenPair(), mode), a.pairCountLocked(p.RedPair(), mode)
}

// pairCountLocked assumes the caller holds the lock.
func (a *Aggregator) pairCountLocked(pair [2]Direction, mode string) int {
	c0 := a.states[pair[0]].VehicleCount
	c1 := a.states[pair[1]].VehicleCount
	if mode == "max" {
		if c0 > c1 {
			return c0
		}
		return c1
	}
	return c0 + c1
}

// SetPhase flips the signals to match a phase: the phase's pair goes
// green, the opposite pair red. Called by the controller on transitions.
func (a *Aggregator) SetPhase(p Phase) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyPhase(p)
}

// applyPhase assumes the caller holds the lock.
func (a *Aggregator) applyPhase(p Phase) {
	for _, d := range p.GreenPair() {
		a.states[d].Signal = Green
	}
	for _, d := range p.RedPair() {
		a.states[d].Signal = Red
	}
}

// Snapshot returns a copy of all four approach states in stable order.
func (a *Aggregator) Snapshot() []ApproachState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]ApproachState, 0, len(Directions))
	for _, d := range Directions {
		out = append(out, *a.states[d])
	}
	return out
}
