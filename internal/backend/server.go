package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/termtab/termtab/internal/protocol"
	"github.com/termtab/termtab/internal/store"
)

// rateLimit is the maximum control messages per second per connection;
// rateBurst lets pastes through before the limiter engages.
const (
	rateLimit = 200
	rateBurst = 200
)

// outputChunkSize is how much PTY output goes into one Output message.
const outputChunkSize = 8192

// maxFrameSize bounds one inbound WebSocket frame.
const maxFrameSize = 1024 * 1024

// settingDefaultShell is the settings key naming the shell started when a
// request does not carry one.
const settingDefaultShell = "default_shell"

// Server relays PTY sessions to WebSocket clients.
type Server struct {
	Runner   Runner
	Store    *store.Store // optional session history
	Settings store.KV     // optional daemon settings (default shell)
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/ws/pty", s.HandlePty)
	r.Get("/sessions", s.handleListSessions)
	return r
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if s.Store == nil {
		http.Error(w, "session history disabled", http.StatusNotFound)
		return
	}
	sessions, err := s.Store.ListSessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// HandlePty upgrades the request and speaks the PTY control protocol until
// the client goes away or the shell exits.
func (s *Server) HandlePty(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[backend] websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameSize)

	c := &client{server: s, conn: conn}
	c.run(r.Context())
}

// client is one WebSocket connection and the shell it controls.
type client struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex // the pump and the control loop both send

	mu       sync.Mutex
	proc     Proc
	paused   bool
	resumed  *sync.Cond
	bytesIn  int64
	bytesOut int64

	sessionID string
}

func (c *client) run(ctx context.Context) {
	c.resumed = sync.NewCond(&c.mu)
	limiter := newTokenBucket(rateBurst, rateLimit)

	defer c.teardown("")

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.allow() {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Printf("[backend] dropping malformed frame: %v", err)
			continue
		}
		if done := c.handle(ctx, msg); done {
			return
		}
	}
}

// handle processes one control message. It returns true when the connection
// should end.
func (c *client) handle(ctx context.Context, msg protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindStartPty:
		c.startPty(ctx, msg)
	case protocol.KindInput:
		c.input(ctx, msg)
	case protocol.KindResize:
		c.resize(ctx, msg)
	case protocol.KindPause:
		c.setPaused(true)
	case protocol.KindResume:
		c.setPaused(false)
	case protocol.KindClose:
		return true
	default:
		c.sendError(ctx, "unsupported message kind: "+string(msg.Kind))
	}
	return false
}

func (c *client) startPty(ctx context.Context, msg protocol.Message) {
	c.mu.Lock()
	already := c.proc != nil
	c.mu.Unlock()
	if already {
		c.sendError(ctx, "session already started")
		return
	}

	cols, rows := msg.Cols, msg.Rows
	if cols == 0 || rows == 0 {
		c.sendError(ctx, "refusing to start PTY with zero geometry")
		return
	}
	if cols > MaxResizeCols {
		cols = MaxResizeCols
	}
	if rows > MaxResizeRows {
		rows = MaxResizeRows
	}

	shell := ""
	if kv := c.server.Settings; kv != nil {
		if v, err := kv.Get(settingDefaultShell); err == nil {
			shell = v
		}
	}

	proc, err := c.server.Runner.Start(shell, cols, rows)
	if err != nil {
		log.Printf("[backend] shell start failed: %v", err)
		c.sendError(ctx, "failed to start shell: "+err.Error())
		return
	}

	id := msg.SessionID
	if id == "" {
		id = uuid.New().String()
	}

	c.mu.Lock()
	c.proc = proc
	c.sessionID = id
	c.mu.Unlock()

	if st := c.server.Store; st != nil {
		// A known session id means the client reconnected after a drop.
		if _, err := st.GetSession(id); err == nil {
			if err := st.BumpReconnects(id); err != nil {
				log.Printf("[backend] reconnect count update failed: %v", err)
			}
			if err := st.UpdateGeometry(id, int(cols), int(rows)); err != nil {
				log.Printf("[backend] geometry update failed: %v", err)
			}
			if err := st.ReopenSession(id); err != nil {
				log.Printf("[backend] session reopen failed: %v", err)
			}
		} else {
			rec := &store.SavedSession{ID: id, Endpoint: "local", Shell: shell, Cols: int(cols), Rows: int(rows)}
			if err := st.CreateSession(rec); err != nil {
				log.Printf("[backend] session record failed: %v", err)
			}
		}
	}

	log.Printf("[backend] session %s started at %dx%d", id, cols, rows)
	c.send(ctx, protocol.Message{
		Kind:      protocol.KindSuccess,
		SessionID: id,
		Status:    protocol.StatusStarted,
		Text:      "PTY session started",
	})

	go c.pump(ctx, proc)
}

func (c *client) input(ctx context.Context, msg protocol.Message) {
	if len(msg.Data) > MaxInputMessageSize {
		log.Printf("[backend] input message too large: session=%s size=%d", c.sessionID, len(msg.Data))
		c.sendError(ctx, "input message too large")
		return
	}
	c.mu.Lock()
	proc := c.proc
	c.bytesIn += int64(len(msg.Data))
	c.mu.Unlock()
	if proc == nil {
		c.sendError(ctx, "no session started")
		return
	}
	if _, err := proc.Stdin().Write(msg.Data); err != nil {
		c.sendError(ctx, "write to shell failed: "+err.Error())
	}
}

func (c *client) resize(ctx context.Context, msg protocol.Message) {
	cols, rows := msg.Cols, msg.Rows
	if cols == 0 || rows == 0 {
		return
	}
	if cols > MaxResizeCols {
		cols = MaxResizeCols
	}
	if rows > MaxResizeRows {
		rows = MaxResizeRows
	}
	c.mu.Lock()
	proc := c.proc
	id := c.sessionID
	c.mu.Unlock()
	if proc == nil {
		return
	}
	if err := proc.Resize(cols, rows); err != nil {
		c.sendError(ctx, "resize failed: "+err.Error())
		return
	}
	if st := c.server.Store; st != nil {
		if err := st.UpdateGeometry(id, int(cols), int(rows)); err != nil {
			log.Printf("[backend] geometry update failed: %v", err)
		}
	}
}

// setPaused flips the output pump's gate. Pausing blocks the pump before its
// next send; the PTY buffer then backpressures the shell itself.
func (c *client) setPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	if !paused {
		c.resumed.Broadcast()
	}
	c.mu.Unlock()
}

// pump copies PTY output to the client in chunks, holding while paused.
func (c *client) pump(ctx context.Context, proc Proc) {
	buf := make([]byte, outputChunkSize)
	for {
		n, err := proc.Stdout().Read(buf)
		if n > 0 {
			c.mu.Lock()
			for c.paused {
				c.resumed.Wait()
			}
			c.bytesOut += int64(n)
			id := c.sessionID
			c.mu.Unlock()

			out := make([]byte, n)
			copy(out, buf[:n])
			if sendErr := c.send(ctx, protocol.Message{Kind: protocol.KindOutput, SessionID: id, Data: out}); sendErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[backend] session %s output read: %v", c.sessionID, err)
			}
			c.sendError(ctx, "shell exited")
			c.writeMu.Lock()
			c.conn.Close(websocket.StatusNormalClosure, "shell exited")
			c.writeMu.Unlock()
			return
		}
	}
}

func (c *client) send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *client) sendError(ctx context.Context, text string) {
	c.mu.Lock()
	id := c.sessionID
	c.mu.Unlock()
	if err := c.send(ctx, protocol.Message{Kind: protocol.KindError, SessionID: id, Text: text}); err != nil {
		log.Printf("[backend] error report send failed: %v", err)
	}
}

// teardown kills the shell and finalizes the session record.
func (c *client) teardown(lastError string) {
	c.mu.Lock()
	proc := c.proc
	c.proc = nil
	c.paused = false
	c.resumed.Broadcast()
	id := c.sessionID
	in, out := c.bytesIn, c.bytesOut
	c.mu.Unlock()

	if proc == nil {
		return
	}
	if err := proc.Close(); err != nil {
		log.Printf("[backend] session %s shell close: %v", id, err)
	}
	if st := c.server.Store; st != nil {
		if err := st.AddTraffic(id, in, out); err != nil {
			log.Printf("[backend] traffic update failed: %v", err)
		}
		if err := st.CloseSession(id, lastError); err != nil {
			log.Printf("[backend] session close record failed: %v", err)
		}
	}
	log.Printf("[backend] session %s closed", id)
}

// tokenBucket rate-limits control messages per connection.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}

// Serve runs the daemon on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
