// Package surface defines the contract between the terminal core and the
// rendering engine that draws the cell grid.
//
// The core never renders anything itself: decoded PTY output is written into
// a Surface, and user keystrokes and viewport resizes flow out of it through
// subscriptions. The package ships two implementations: Stdio, which renders
// to the controlling terminal, and Fake, an instrumented in-memory surface
// used across the test suites.
package surface

// Geometry is a terminal size in character cells.
type Geometry struct {
	Cols int
	Rows int
}

// Usable reports whether the geometry meets the given minimum. A PTY opened
// against a smaller viewport tends to corrupt the remote display.
func (g Geometry) Usable(minCols, minRows int) bool {
	return g.Cols >= minCols && g.Rows >= minRows
}

// Surface is the rendering engine seen from the core.
//
// Write and WriteAck must render in call order; WriteAck additionally invokes
// done once the chunk has been consumed by the render pipeline, which the
// flow controller uses as its completion signal for paced writes.
type Surface interface {
	// Size returns the current viewport geometry. A hidden or not-yet-laid-out
	// viewport may report zero in either dimension.
	Size() Geometry

	// RequestLayout forces a layout pass so a subsequent Size call reflects
	// the real viewport. Called by the geometry gate between polls.
	RequestLayout()

	// Write renders a chunk immediately (flow-control fast path).
	Write(p []byte)

	// WriteAck renders a chunk and calls done when the render pipeline has
	// consumed it (flow-control paced path). done is never nil.
	WriteAck(p []byte, done func())

	// Banner renders a line of diagnostic text distinct from session output.
	Banner(text string)

	// OnInput subscribes to raw keystroke bytes. The returned function
	// removes the subscription.
	OnInput(fn func(data []byte)) (unsubscribe func())

	// OnResize subscribes to viewport geometry changes. The returned
	// function removes the subscription.
	OnResize(fn func(g Geometry)) (unsubscribe func())
}
