// Package flowctl paces delivery of PTY output to the rendering surface.
//
// The backend PTY can produce data far faster than a render pipeline can
// draw it (cat on a large file floods the channel); without pacing, the
// render queue grows without bound. The controller forwards small volumes
// immediately, and once the byte budget for a pacing decision is exceeded it
// switches that batch to an acknowledged write whose completion is tracked
// in a pending counter. Crossing the high-water mark on pending writes sends
// a single Pause to the backend; draining below the low-water mark sends a
// single Resume. The two thresholds keep the signaling from oscillating on
// noisy boundaries.
package flowctl

import (
	"log"
	"sync"

	"github.com/termtab/termtab/internal/surface"
)

// Defaults for the pacing scheme.
const (
	DefaultLimit     = 10000 // bytes forwarded per pacing decision
	DefaultHighWater = 5     // pending paced writes that trigger Pause
	DefaultLowWater  = 2     // pending paced writes below which Resume fires
)

// Config holds the pacing thresholds.
type Config struct {
	Limit     int
	HighWater int
	LowWater  int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit, HighWater: DefaultHighWater, LowWater: DefaultLowWater}
}

// Controller throttles output delivery for one connection. Pause and Resume
// callbacks emit the corresponding control messages to the backend; either
// may be nil. Counters reset only at connection (re)establishment via Reset.
type Controller struct {
	cfg    Config
	surf   surface.Surface
	pause  func()
	resume func()

	mu      sync.Mutex
	written int  // bytes forwarded since the last pacing decision
	pending int  // paced writes awaiting render completion
	paused  bool // a Pause has been sent and no Resume yet
	closed  bool // connection reported closed; drop further output
}

// New creates a controller writing into surf. Zero or negative config values
// fall back to the defaults.
func New(cfg Config, surf surface.Surface, pause, resume func()) *Controller {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.HighWater <= 0 {
		cfg.HighWater = DefaultHighWater
	}
	if cfg.LowWater <= 0 {
		cfg.LowWater = DefaultLowWater
	}
	return &Controller{cfg: cfg, surf: surf, pause: pause, resume: resume}
}

// Deliver forwards one output chunk to the surface, pacing as needed.
// Chunks are forwarded in call order regardless of which path they take.
// Empty chunks are no-ops; chunks arriving after Close are dropped.
func (c *Controller) Deliver(data []byte) {
	if len(data) == 0 {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.written += len(data)
	if c.written <= c.cfg.Limit {
		// Fast path: forward immediately, no acknowledgment tracking.
		c.mu.Unlock()
		c.surf.Write(data)
		return
	}

	// Paced path: this batch consumed the byte budget.
	c.written = 0
	c.pending++
	sendPause := false
	if c.pending > c.cfg.HighWater && !c.paused {
		c.paused = true
		sendPause = true
	}
	c.mu.Unlock()

	c.surf.WriteAck(data, c.completed)

	if sendPause {
		log.Printf("[flowctl] pending %d exceeds high water %d, pausing backend", c.Pending(), c.cfg.HighWater)
		if c.pause != nil {
			c.pause()
		}
	}
}

// completed is the render-completion callback for paced writes.
func (c *Controller) completed() {
	c.mu.Lock()
	if c.pending > 0 {
		c.pending--
	}
	sendResume := false
	if c.paused && c.pending < c.cfg.LowWater {
		c.paused = false
		sendResume = true
	}
	c.mu.Unlock()

	if sendResume {
		log.Printf("[flowctl] pending drained below low water %d, resuming backend", c.cfg.LowWater)
		if c.resume != nil {
			c.resume()
		}
	}
}

// Reset zeroes the counters for a (re)established connection.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = 0
	c.pending = 0
	c.paused = false
	c.closed = false
}

// Close marks the connection torn down. Output delivered afterwards is
// dropped rather than rendered into a dead surface; in-flight completion
// callbacks still drain the pending counter.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Pending returns the count of paced writes awaiting completion.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Written returns bytes forwarded since the last pacing decision.
func (c *Controller) Written() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}

// Paused reports whether a Pause has been sent without a matching Resume.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}
