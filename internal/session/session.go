// Package session drives the lifecycle of one remote interactive PTY
// session: the geometry handshake before start, the WebSocket transport to
// the backend, flow-controlled output delivery to the rendering surface, and
// reconnect-on-drop while the session remains wanted.
//
// One Session owns exactly one transport connection and its flow-control
// counters; connections are not shared or pooled. The owning tab calls Open
// once and Close once; everything between is event-driven.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termtab/termtab/internal/flowctl"
	"github.com/termtab/termtab/internal/geometry"
	"github.com/termtab/termtab/internal/protocol"
	"github.com/termtab/termtab/internal/surface"
)

// Default connection policy.
const (
	// DefaultReconnectDelay is the fixed wait before a reconnect attempt.
	DefaultReconnectDelay = 2 * time.Second
	// DefaultDialTimeout bounds a single connect attempt.
	DefaultDialTimeout = 10 * time.Second
	// sendTimeout bounds best-effort control sends during teardown.
	sendTimeout = 2 * time.Second
)

// Config holds the connection policy for a session.
type Config struct {
	// Endpoint is the backend WebSocket URL.
	Endpoint string
	// ReconnectDelay is the fixed wait between losing the connection and
	// the next attempt.
	ReconnectDelay time.Duration
	// MaxReconnects caps consecutive failed reconnect attempts. Zero means
	// retry for as long as the session is wanted.
	MaxReconnects int
	// DialTimeout bounds each connect attempt.
	DialTimeout time.Duration
	// Gate configures the pre-start geometry handshake.
	Gate geometry.Gate
	// Flow configures output pacing.
	Flow flowctl.Config
}

// DefaultConfig returns the standard policy for the given endpoint.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		ReconnectDelay: DefaultReconnectDelay,
		DialTimeout:    DefaultDialTimeout,
		Gate:           geometry.NewGate(),
		Flow:           flowctl.DefaultConfig(),
	}
}

// Session is one remote interactive session, exclusively owned by the tab
// that created it.
type Session struct {
	id     string
	cfg    Config
	dialer Dialer
	surf   surface.Surface
	flow   *flowctl.Controller
	states *stateLog
	events *eventLog

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	conn        Conn
	geom        surface.Geometry
	running     bool // the "still wanted" flag reconnect logic checks
	failures    int  // consecutive failed connect attempts
	timer       *time.Timer
	unsubInput  func()
	unsubResize func()
}

// New creates a session. An empty id is replaced with a fresh UUID. The
// dialer and surface are injected so tests can run without real endpoints.
func New(id string, cfg Config, dialer Dialer, surf surface.Surface) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.Gate.MaxAttempts == 0 {
		cfg.Gate = geometry.NewGate()
	}

	s := &Session{
		id:     id,
		cfg:    cfg,
		dialer: dialer,
		surf:   surf,
		states: &stateLog{},
		events: &eventLog{},
	}
	s.flow = flowctl.New(cfg.Flow, surf, s.sendPause, s.sendResume)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.states.get() }

// Transitions returns the recorded state transition history.
func (s *Session) Transitions() []Transition { return s.states.history() }

// Events returns the recorded connection event history.
func (s *Session) Events() []Event { return s.events.history() }

// OnStateChange registers a callback invoked on every state change.
func (s *Session) OnStateChange(cb StateChangeCallback) { s.states.onChange(cb) }

// OnEvent registers a listener for connection events.
func (s *Session) OnEvent(l EventListener) { s.events.listen(l) }

// Geometry returns the last negotiated terminal geometry.
func (s *Session) Geometry() surface.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geom
}

// Open starts the session: it subscribes to surface input and resize
// events, runs the geometry gate, dials the backend, and sends StartPty.
// A connect failure is not returned as an error — the session enters the
// reconnect loop, exactly as it does when an established channel drops.
// Open returns an error only on misuse (the session was already opened).
func (s *Session) Open() error {
	s.mu.Lock()
	if s.running || s.states.get() != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session %s: already opened", s.id)
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.states.set(StateConnecting, "open requested")
	s.attachBridge()

	if err := s.connect(); err != nil {
		log.Printf("[session] %s: initial connect failed: %v", s.id, err)
		s.surf.Banner("[warn] connection failed, attempting to reconnect")
		s.scheduleReconnect(fmt.Sprintf("initial connect failed: %v", err))
	}
	return nil
}

// connect runs one full connection attempt: geometry gate, dial, StartPty.
// The read loop is started on success. Callers handle the returned error by
// scheduling a reconnect.
func (s *Session) connect() error {
	s.states.set(StateAwaitingGeometry, "waiting for usable viewport")
	res := s.cfg.Gate.Wait(s.ctx, s.surf)
	if res.TimedOut {
		// Forward progress over correctness: start anyway, but say so.
		s.surf.Banner(fmt.Sprintf("[warn] viewport never reached usable size, starting at %dx%d",
			res.Geometry.Cols, res.Geometry.Rows))
	}
	s.mu.Lock()
	s.geom = res.Geometry
	ctx := s.ctx
	s.mu.Unlock()

	s.states.set(StateStarting, "dialing backend")
	conn, err := s.dialer.Dial(ctx, s.cfg.Endpoint)
	if err != nil {
		return err
	}

	if err := conn.Send(ctx, protocol.StartPty(s.id, uint16(res.Geometry.Cols), uint16(res.Geometry.Rows))); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	if !s.running {
		// Closed while connecting.
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.failures = 0
	s.mu.Unlock()

	// Counters survive within a connection, reset across them.
	s.flow.Reset()

	s.events.record(Event{SessionID: s.id, Type: EventConnected, Timestamp: time.Now(), Details: s.cfg.Endpoint})
	go s.readLoop(conn)
	return nil
}

// readLoop pumps inbound messages until the connection dies.
func (s *Session) readLoop(conn Conn) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			s.connectionLost(conn, err)
			return
		}
		s.handleMessage(msg)
	}
}

// handleMessage dispatches one inbound control message. Error reports are
// rendered but never transition state: the connection-close event, not the
// error message, is what drives the lifecycle.
func (s *Session) handleMessage(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindOutput:
		s.flow.Deliver(msg.Data)
	case protocol.KindError:
		s.surf.Banner("[error] " + msg.Text)
	case protocol.KindSuccess:
		if msg.SessionReady() && s.states.get() == StateStarting {
			s.states.set(StateActive, "backend acknowledged session start")
			s.events.record(Event{SessionID: s.id, Type: EventReady, Timestamp: time.Now(), Details: msg.Text})
			text := msg.Text
			if text == "" {
				text = "PTY session started"
			}
			s.surf.Banner(text)
		}
	default:
		log.Printf("[session] %s: ignoring unexpected %s message", s.id, msg.Kind)
	}
}

// connectionLost handles an unexpected channel drop. If the session is still
// wanted it schedules exactly one reconnect attempt after the fixed delay;
// otherwise it finishes the teardown.
func (s *Session) connectionLost(conn Conn, cause error) {
	s.mu.Lock()
	if conn != s.conn {
		// A stale read loop from a connection we already replaced or closed.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	running := s.running
	s.mu.Unlock()

	// No rendering into a torn-down channel's surface slot: late output is
	// dropped until the next connection resets the controller.
	s.flow.Close()

	if !running {
		s.states.set(StateClosed, "connection closed")
		return
	}

	log.Printf("[session] %s: connection lost: %v", s.id, cause)
	s.events.record(Event{SessionID: s.id, Type: EventDisconnected, Timestamp: time.Now(), Details: cause.Error()})
	s.surf.Banner("[warn] connection closed, attempting to reconnect")
	s.scheduleReconnect("connection lost")
}

// scheduleReconnect arms a single reconnect timer if the session is still
// wanted and the retry budget allows it.
func (s *Session) scheduleReconnect(reason string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.failures++
	if s.cfg.MaxReconnects > 0 && s.failures > s.cfg.MaxReconnects {
		s.running = false
		s.mu.Unlock()
		s.states.set(StateClosed, fmt.Sprintf("gave up after %d reconnect attempts", s.cfg.MaxReconnects))
		s.events.record(Event{SessionID: s.id, Type: EventClosed, Timestamp: time.Now(),
			Details: fmt.Sprintf("reconnect budget exhausted (%d attempts)", s.cfg.MaxReconnects)})
		s.surf.Banner(fmt.Sprintf("[error] giving up after %d reconnect attempts", s.cfg.MaxReconnects))
		s.detachBridge()
		return
	}
	if s.timer != nil {
		// A reconnect is already scheduled.
		s.mu.Unlock()
		return
	}
	s.timer = time.AfterFunc(s.cfg.ReconnectDelay, s.reconnect)
	s.mu.Unlock()

	s.states.set(StateReconnecting, reason)
	s.events.record(Event{SessionID: s.id, Type: EventReconnecting, Timestamp: time.Now(), Details: reason})
}

// reconnect re-runs the full connect sequence, geometry gate included.
func (s *Session) reconnect() {
	s.mu.Lock()
	s.timer = nil
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	s.states.set(StateConnecting, "reconnecting")
	if err := s.connect(); err != nil {
		log.Printf("[session] %s: reconnect failed: %v", s.id, err)
		s.scheduleReconnect(fmt.Sprintf("reconnect failed: %v", err))
		return
	}
	s.events.record(Event{SessionID: s.id, Type: EventReconnected, Timestamp: time.Now()})
}

// Close ends the session: it clears the wanted flag so no reconnect fires,
// unsubscribes from surface events, sends a best-effort Close message, and
// tears the connection down. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.running && s.states.get() == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	cancel := s.cancel
	s.mu.Unlock()

	s.states.set(StateClosing, "close requested")
	s.detachBridge()

	if conn != nil {
		ctx, cancelSend := context.WithTimeout(context.Background(), sendTimeout)
		if err := conn.Send(ctx, protocol.Close(s.id)); err != nil {
			log.Printf("[session] %s: close notify failed: %v", s.id, err)
		}
		cancelSend()
		conn.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.flow.Close()

	s.states.set(StateClosed, "closed by owner")
	s.events.record(Event{SessionID: s.id, Type: EventClosed, Timestamp: time.Now(), Details: "closed by owner"})
	return nil
}

// sendPause emits a Pause control message when the flow controller crosses
// the high-water mark.
func (s *Session) sendPause() {
	s.sendControl(protocol.Pause(s.id))
}

// sendResume emits a Resume control message when pending writes drain.
func (s *Session) sendResume() {
	s.sendControl(protocol.Resume(s.id))
}

// sendControl sends a message on the current connection, dropping it
// silently if no connection is open.
func (s *Session) sendControl(msg protocol.Message) {
	s.mu.Lock()
	conn := s.conn
	ctx := s.ctx
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Send(ctx, msg); err != nil {
		log.Printf("[session] %s: send %s failed: %v", s.id, msg.Kind, err)
	}
}
