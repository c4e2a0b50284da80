// events.go implements connection event logging for terminal sessions.
//
// Events record individual connection actions and their outcomes (connected,
// dropped, reconnect scheduled, reconnected, closed), complementing the state
// transition history in state.go. They are kept in a fixed ring buffer and
// fanned out to registered listeners for UI status indicators.

package session

import (
	"sync"
	"time"
)

// eventBufferSize is the maximum number of events retained per session.
const eventBufferSize = 100

// EventType identifies a connection lifecycle event.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventReady        EventType = "ready"
	EventDisconnected EventType = "disconnected"
	EventReconnecting EventType = "reconnecting"
	EventReconnected  EventType = "reconnected"
	EventClosed       EventType = "closed"
)

// Event is one connection lifecycle event.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// EventListener is a callback for connection events. Listeners are called
// synchronously; long-running handlers should spawn goroutines.
type EventListener func(event Event)

// eventLog is a fixed-size ring buffer of events with listener fan-out.
type eventLog struct {
	mu        sync.Mutex
	events    [eventBufferSize]Event
	head      int
	count     int
	listeners []EventListener
}

// record stores an event and notifies listeners.
func (el *eventLog) record(event Event) {
	el.mu.Lock()
	el.events[el.head] = event
	el.head = (el.head + 1) % eventBufferSize
	if el.count < eventBufferSize {
		el.count++
	}
	ls := make([]EventListener, len(el.listeners))
	copy(ls, el.listeners)
	el.mu.Unlock()

	for _, l := range ls {
		l(event)
	}
}

// history returns recorded events in chronological order.
func (el *eventLog) history() []Event {
	el.mu.Lock()
	defer el.mu.Unlock()
	if el.count == 0 {
		return nil
	}
	result := make([]Event, el.count)
	if el.count < eventBufferSize {
		copy(result, el.events[:el.count])
	} else {
		n := copy(result, el.events[el.head:])
		copy(result[n:], el.events[:el.head])
	}
	return result
}

// listen registers an event listener.
func (el *eventLog) listen(l EventListener) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.listeners = append(el.listeners, l)
}
