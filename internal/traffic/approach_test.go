package traffic

import (
	"testing"
	"time"
)

func TestAggregatorInitialState(t *testing.T) {
	agg := NewAggregator()

	snap := agg.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("Snapshot() has %d approaches, want 4", len(snap))
	}
	for i, d := range Directions {
		if snap[i].Direction != d {
			t.Errorf("snapshot[%d].Direction = %s, want %s", i, snap[i].Direction, d)
		}
		if snap[i].VehicleCount != 0 {
			t.Errorf("%s starts with count %d, want 0", d, snap[i].VehicleCount)
		}
	}

	// Signals start consistent with EW_GREEN.
	for _, d := range []Direction{East, West} {
		if got := signalFor(t, snap, d); got != Green {
			t.Errorf("%s signal = %s, want GREEN", d, got)
		}
	}
	for _, d := range []Direction{North, South} {
		if got := signalFor(t, snap, d); got != Red {
			t.Errorf("%s signal = %s, want RED", d, got)
		}
	}
}

func signalFor(t *testing.T, snap []ApproachState, d Direction) Signal {
	t.Helper()
	for _, st := range snap {
		if st.Direction == d {
			return st.Signal
		}
	}
	t.Fatalf("direction %s missing from snapshot", d)
	return ""
}

func TestAggregatorUpdateCount(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()

	t.Run("last write wins", func(t *testing.T) {
		if err := agg.UpdateCount(North, 3, now); err != nil {
			t.Fatal(err)
		}
		if err := agg.UpdateCount(North, 7, now.Add(time.Second)); err != nil {
			t.Fatal(err)
		}
		if got := agg.Count(North); got != 7 {
			t.Errorf("Count(North) = %d, want 7", got)
		}
	})

	t.Run("negative clamps to zero", func(t *testing.T) {
		if err := agg.UpdateCount(South, -5, now); err != nil {
			t.Fatal(err)
		}
		if got := agg.Count(South); got != 0 {
			t.Errorf("Count(South) = %d, want 0", got)
		}
	})

	t.Run("unknown direction rejected", func(t *testing.T) {
		if err := agg.UpdateCount(Direction("Up"), 1, now); err == nil {
			t.Error("UpdateCount accepted an unknown direction")
		}
	})
}

func TestAggregatorPairCount(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()
	mustUpdate(t, agg, East, 4, now)
	mustUpdate(t, agg, West, 6, now)

	pair := PhaseEWGreen.GreenPair()
	if got := agg.PairCount(pair, "sum"); got != 10 {
		t.Errorf(`PairCount(sum) = %d, want 10`, got)
	}
	if got := agg.PairCount(pair, "max"); got != 6 {
		t.Errorf(`PairCount(max) = %d, want 6`, got)
	}
	// Unknown modes fall back to sum.
	if got := agg.PairCount(pair, "median"); got != 10 {
		t.Errorf(`PairCount(unknown mode) = %d, want 10`, got)
	}
}

func TestPhasePairCounts(t *testing.T) {
	agg := NewAggregator()
	now := time.Now()
	mustUpdate(t, agg, East, 4, now)
	mustUpdate(t, agg, West, 6, now)
	mustUpdate(t, agg, North, 2, now)
	mustUpdate(t, agg, South, 1, now)

	t.Run("sum", func(t *testing.T) {
		green, red := agg.PhasePairCounts(PhaseEWGreen, "sum")
		if green != 10 || red != 3 {
			t.Errorf("PhasePairCounts(EW, sum) = %d, %d, want 10, 3", green, red)
		}
	})

	t.Run("max", func(t *testing.T) {
		green, red := agg.PhasePairCounts(PhaseEWGreen, "max")
		if green != 6 || red != 2 {
			t.Errorf("PhasePairCounts(EW, max) = %d, %d, want 6, 2", green, red)
		}
	})

	t.Run("opposite phase swaps the pairs", func(t *testing.T) {
		green, red := agg.PhasePairCounts(PhaseNSGreen, "sum")
		if green != 3 || red != 10 {
			t.Errorf("PhasePairCounts(NS, sum) = %d, %d, want 3, 10", green, red)
		}
	})
}

func mustUpdate(t *testing.T, agg *Aggregator, d Direction, count int, now time.Time) {
	t.Helper()
	if err := agg.UpdateCount(d, count, now); err != nil {
		t.Fatal(err)
	}
}

func TestAggregatorSetPhase(t *testing.T) {
	agg := NewAggregator()
	agg.SetPhase(PhaseNSGreen)

	snap := agg.Snapshot()
	if got := signalFor(t, snap, North); got != Green {
		t.Errorf("North signal = %s after NS_GREEN, want GREEN", got)
	}
	if got := signalFor(t, snap, East); got != Red {
		t.Errorf("East signal = %s after NS_GREEN, want RED", got)
	}
}

func TestPhasePairs(t *testing.T) {
	if got := PhaseEWGreen.Other(); got != PhaseNSGreen {
		t.Errorf("EW_GREEN.Other() = %s, want NS_GREEN", got)
	}
	if got := PhaseNSGreen.Other(); got != PhaseEWGreen {
		t.Errorf("NS_GREEN.Other() = %s, want EW_GREEN", got)
	}
	if got := PhaseEWGreen.GreenPair(); got != [2]Direction{East, West} {
		t.Errorf("EW_GREEN.GreenPair() = %v", got)
	}
	if got := PhaseEWGreen.RedPair(); got != [2]Direction{North, South} {
		t.Errorf("EW_GREEN.RedPair() = %v", got)
	}
}
