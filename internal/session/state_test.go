package session

import (
	"fmt"
	"testing"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateAwaitingGeometry, "awaiting_geometry"},
		{StateStarting, "starting"},
		{StateActive, "active"},
		{StateReconnecting, "reconnecting"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateLogSameStateNoOp(t *testing.T) {
	l := &stateLog{}
	l.set(StateConnecting, "first")
	l.set(StateConnecting, "again")
	if got := len(l.history()); got != 1 {
		t.Errorf("transitions recorded = %d, want 1", got)
	}
}

func TestStateLogHistoryOrder(t *testing.T) {
	l := &stateLog{}
	l.set(StateConnecting, "a")
	l.set(StateStarting, "b")
	l.set(StateActive, "c")

	h := l.history()
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	if h[0].From != StateIdle || h[0].To != StateConnecting {
		t.Errorf("first transition = %v→%v, want idle→connecting", h[0].From, h[0].To)
	}
	if h[2].To != StateActive || h[2].Reason != "c" {
		t.Errorf("last transition = %v (%q), want active (c)", h[2].To, h[2].Reason)
	}
}

func TestStateLogRingOverflow(t *testing.T) {
	l := &stateLog{}
	// Alternate so every set records a transition.
	for i := 0; i < transitionBufferSize+10; i++ {
		if i%2 == 0 {
			l.set(StateActive, fmt.Sprintf("t%d", i))
		} else {
			l.set(StateReconnecting, fmt.Sprintf("t%d", i))
		}
	}
	h := l.history()
	if len(h) != transitionBufferSize {
		t.Fatalf("history length = %d, want %d", len(h), transitionBufferSize)
	}
	// Oldest surviving entry is the 11th transition (t10).
	if h[0].Reason != "t10" {
		t.Errorf("oldest retained reason = %q, want t10", h[0].Reason)
	}
	if h[len(h)-1].Reason != fmt.Sprintf("t%d", transitionBufferSize+9) {
		t.Errorf("newest retained reason = %q", h[len(h)-1].Reason)
	}
}

func TestEventLogRingOverflow(t *testing.T) {
	el := &eventLog{}
	for i := 0; i < eventBufferSize+5; i++ {
		el.record(Event{SessionID: "s", Type: EventConnected, Details: fmt.Sprintf("e%d", i)})
	}
	h := el.history()
	if len(h) != eventBufferSize {
		t.Fatalf("history length = %d, want %d", len(h), eventBufferSize)
	}
	if h[0].Details != "e5" {
		t.Errorf("oldest retained event = %q, want e5", h[0].Details)
	}
}

func TestEventListenerFanOut(t *testing.T) {
	el := &eventLog{}
	var got []Event
	el.listen(func(ev Event) { got = append(got, ev) })
	el.record(Event{Type: EventConnected})
	el.record(Event{Type: EventClosed})
	if len(got) != 2 || got[0].Type != EventConnected || got[1].Type != EventClosed {
		t.Errorf("listener saw %v", got)
	}
}
