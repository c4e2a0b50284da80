package geometry

import (
	"context"
	"testing"
	"time"

	"github.com/termtab/termtab/internal/surface"
)

// fastGate returns a gate with timing shrunk so tests run in milliseconds.
func fastGate() Gate {
	g := NewGate()
	g.SettleDelay = time.Millisecond
	g.PollInterval = time.Millisecond
	return g
}

func TestGate_UsableImmediately(t *testing.T) {
	s := surface.NewFake(surface.Geometry{Cols: 80, Rows: 24})

	res := fastGate().Wait(context.Background(), s)

	if res.TimedOut {
		t.Error("gate timed out with a usable surface")
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if res.Geometry != (surface.Geometry{Cols: 80, Rows: 24}) {
		t.Errorf("geometry = %+v, want 80x24", res.Geometry)
	}
	if s.Layouts() != 1 {
		t.Errorf("layout passes = %d, want 1", s.Layouts())
	}
}

func TestGate_ZeroMaxAttemptsTerminates(t *testing.T) {
	s := surface.NewFake(surface.Geometry{}) // never usable

	g := fastGate()
	g.MaxAttempts = 0
	res := g.Wait(context.Background(), s)

	if !res.TimedOut {
		t.Error("gate did not report timeout on an unusable surface")
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 for an unset attempt budget", res.Attempts)
	}
}

func TestGate_BecomesUsableAfterPolls(t *testing.T) {
	s := surface.NewFake(surface.Geometry{})
	s.ScriptSizes(
		surface.Geometry{},
		surface.Geometry{Cols: 10, Rows: 2},
		surface.Geometry{Cols: 39, Rows: 5}, // one column short
		surface.Geometry{Cols: 40, Rows: 5},
	)

	res := fastGate().Wait(context.Background(), s)

	if res.TimedOut {
		t.Error("gate timed out, want threshold satisfaction")
	}
	if res.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", res.Attempts)
	}
	if !res.Geometry.Usable(DefaultMinCols, DefaultMinRows) {
		t.Errorf("geometry %+v not usable", res.Geometry)
	}
}

func TestGate_GivesUpAfterBudget(t *testing.T) {
	s := surface.NewFake(surface.Geometry{Cols: 12, Rows: 3})

	res := fastGate().Wait(context.Background(), s)

	if !res.TimedOut {
		t.Error("gate did not report timeout for a never-usable surface")
	}
	if res.Attempts != DefaultMaxAttempts {
		t.Errorf("attempts = %d, want %d", res.Attempts, DefaultMaxAttempts)
	}
	// Forward progress over correctness: the last observed geometry comes back.
	if res.Geometry != (surface.Geometry{Cols: 12, Rows: 3}) {
		t.Errorf("geometry = %+v, want last observed 12x3", res.Geometry)
	}
}

func TestGate_AttemptBoundHolds(t *testing.T) {
	// Any geometry script terminates within the attempt budget.
	scripts := [][]surface.Geometry{
		{{}},
		{{Cols: 80, Rows: 24}},
		{{}, {}, {Cols: 200, Rows: 50}},
		{{Cols: 39, Rows: 4}},
	}

	for _, script := range scripts {
		s := surface.NewFake(surface.Geometry{})
		s.ScriptSizes(script...)
		res := fastGate().Wait(context.Background(), s)
		if res.Attempts > DefaultMaxAttempts {
			t.Errorf("attempts = %d exceeds budget %d", res.Attempts, DefaultMaxAttempts)
		}
	}
}

func TestGate_ContextCancelled(t *testing.T) {
	s := surface.NewFake(surface.Geometry{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := fastGate().Wait(ctx, s)
	if !res.TimedOut {
		t.Error("cancelled gate should report TimedOut")
	}
}

func TestGate_LayoutForcedPerAttempt(t *testing.T) {
	s := surface.NewFake(surface.Geometry{})
	s.ScriptSizes(
		surface.Geometry{},
		surface.Geometry{},
		surface.Geometry{Cols: 80, Rows: 24},
	)

	res := fastGate().Wait(context.Background(), s)

	if s.Layouts() != res.Attempts {
		t.Errorf("layout passes = %d, attempts = %d; want equal", s.Layouts(), res.Attempts)
	}
}
