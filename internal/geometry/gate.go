// Package geometry implements the wait-for-proper-size handshake that runs
// before a PTY session may start.
//
// A viewport that has not finished layout (hidden tab, zero-sized split)
// reports degenerate dimensions; starting a remote PTY against those corrupts
// the session's display. The gate polls the rendering surface, forcing a
// layout pass between polls, until the geometry is usable or the attempt
// budget runs out. It never fails: after the budget is exhausted it proceeds
// with whatever the surface last reported, so a stuck layout can delay but
// not deadlock session start.
package geometry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/termtab/termtab/internal/surface"
)

// Defaults for the gate. MinCols/MinRows are the smallest viewport a shell
// prompt renders sensibly into.
const (
	DefaultMinCols      = 40
	DefaultMinRows      = 5
	DefaultSettleDelay  = 50 * time.Millisecond
	DefaultPollInterval = 100 * time.Millisecond
	DefaultMaxAttempts  = 100
)

// Gate polls a surface until it reports a usable geometry. The zero value is
// not usable; construct with NewGate.
type Gate struct {
	MinCols      int
	MinRows      int
	SettleDelay  time.Duration
	PollInterval time.Duration
	MaxAttempts  int
}

// NewGate returns a gate with the default thresholds and timing.
func NewGate() Gate {
	return Gate{
		MinCols:      DefaultMinCols,
		MinRows:      DefaultMinRows,
		SettleDelay:  DefaultSettleDelay,
		PollInterval: DefaultPollInterval,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

// Result reports what the gate observed. TimedOut is set when the attempt
// budget was exhausted (or the context cancelled) and the returned geometry
// is whatever the surface last reported, possibly undersized.
type Result struct {
	Geometry surface.Geometry
	Attempts int
	TimedOut bool
}

var errUndersized = errors.New("viewport below minimum usable size")

// Wait blocks until the surface reports a usable geometry or the attempt
// budget is exhausted. It always returns a result; it never errors. Each
// attempt forces a layout pass before querying the size.
func (g Gate) Wait(ctx context.Context, s surface.Surface) Result {
	// Let the first layout settle before polling.
	select {
	case <-time.After(g.SettleDelay):
	case <-ctx.Done():
	}

	var last surface.Geometry
	attempts := 0

	// An unset or negative attempt count means a single attempt, not an
	// unbounded loop via uint64 underflow.
	budget := g.MaxAttempts
	if budget < 1 {
		budget = 1
	}
	b := retry.WithMaxRetries(uint64(budget-1), retry.NewConstant(g.PollInterval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		s.RequestLayout()
		last = s.Size()
		if last.Usable(g.MinCols, g.MinRows) {
			return nil
		}
		return retry.RetryableError(errUndersized)
	})

	if err != nil {
		log.Printf("[geometry] gate gave up after %d attempts, proceeding with %dx%d",
			attempts, last.Cols, last.Rows)
		return Result{Geometry: last, Attempts: attempts, TimedOut: true}
	}
	return Result{Geometry: last, Attempts: attempts}
}
