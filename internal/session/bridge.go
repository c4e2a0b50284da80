package session

import (
	"log"

	"github.com/termtab/termtab/internal/protocol"
	"github.com/termtab/termtab/internal/surface"
)

// attachBridge subscribes the session to the surface's input and resize
// streams. The subscriptions live for the whole session, across reconnects.
func (s *Session) attachBridge() {
	unsubIn := s.surf.OnInput(s.handleInput)
	unsubRe := s.surf.OnResize(s.handleResize)
	s.mu.Lock()
	s.unsubInput = unsubIn
	s.unsubResize = unsubRe
	s.mu.Unlock()
}

// detachBridge drops the surface subscriptions. Idempotent.
func (s *Session) detachBridge() {
	s.mu.Lock()
	unsubIn := s.unsubInput
	unsubRe := s.unsubResize
	s.unsubInput = nil
	s.unsubResize = nil
	s.mu.Unlock()
	if unsubIn != nil {
		unsubIn()
	}
	if unsubRe != nil {
		unsubRe()
	}
}

// handleInput forwards keystrokes to the backend. While no connection is
// open the bytes are dropped, not queued: nothing typed during an outage may
// leak into the next connection.
func (s *Session) handleInput(data []byte) {
	s.mu.Lock()
	conn := s.conn
	ctx := s.ctx
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Send(ctx, protocol.Input(s.id, data)); err != nil {
		log.Printf("[session] %s: input send failed: %v", s.id, err)
	}
}

// handleResize records the new geometry and forwards it when connected. The
// recorded value also seeds the StartPty of the next reconnect.
func (s *Session) handleResize(g surface.Geometry) {
	s.mu.Lock()
	s.geom = g
	conn := s.conn
	ctx := s.ctx
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Send(ctx, protocol.Resize(s.id, uint16(g.Cols), uint16(g.Rows))); err != nil {
		log.Printf("[session] %s: resize send failed: %v", s.id, err)
	}
}
