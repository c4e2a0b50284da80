// state.go implements lifecycle state tracking for a terminal session.
//
// A session moves Idle → Connecting → AwaitingGeometry → Starting → Active,
// and from Active to Closing on explicit close or to Reconnecting on an
// unexpected channel drop. Pausing under flow control is an overlay on
// Active (see flowctl), not a state. Transitions are recorded in a fixed
// ring buffer for debugging and exposed via callbacks for UI updates.

package session

import (
	"sync"
	"time"
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingGeometry
	StateStarting
	StateActive
	StateReconnecting
	StateClosing
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingGeometry:
		return "awaiting_geometry"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transitionBufferSize is the maximum number of state transitions retained
// for debugging.
const transitionBufferSize = 50

// Transition records a single state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// StateChangeCallback is invoked on every state change. Callbacks run
// synchronously; long-running handlers should spawn goroutines.
type StateChangeCallback func(from, to State)

// stateLog tracks the current state and a ring buffer of transitions.
type stateLog struct {
	mu          sync.Mutex
	current     State
	transitions [transitionBufferSize]Transition
	head        int // next write position
	count       int // entries written, capped at buffer size
	callbacks   []StateChangeCallback
}

// set updates the state, records the transition, and invokes callbacks.
// Setting the same state is a no-op.
func (l *stateLog) set(to State, reason string) {
	l.mu.Lock()
	from := l.current
	if from == to {
		l.mu.Unlock()
		return
	}
	l.current = to
	l.transitions[l.head] = Transition{From: from, To: to, Timestamp: time.Now(), Reason: reason}
	l.head = (l.head + 1) % transitionBufferSize
	if l.count < transitionBufferSize {
		l.count++
	}
	cbs := make([]StateChangeCallback, len(l.callbacks))
	copy(cbs, l.callbacks)
	l.mu.Unlock()

	for _, cb := range cbs {
		cb(from, to)
	}
}

// get returns the current state.
func (l *stateLog) get() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// history returns recorded transitions in chronological order.
func (l *stateLog) history() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return nil
	}
	result := make([]Transition, l.count)
	if l.count < transitionBufferSize {
		copy(result, l.transitions[:l.count])
	} else {
		// Buffer is full, head is the oldest entry.
		n := copy(result, l.transitions[l.head:])
		copy(result[n:], l.transitions[:l.head])
	}
	return result
}

// onChange registers a state change callback.
func (l *stateLog) onChange(cb StateChangeCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}
