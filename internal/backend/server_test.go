package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/termtab/termtab/internal/config"
	"github.com/termtab/termtab/internal/protocol"
	"github.com/termtab/termtab/internal/session"
	"github.com/termtab/termtab/internal/store"
	"github.com/termtab/termtab/internal/surface"
)

func TestValidateShell(t *testing.T) {
	tests := []struct {
		shell   string
		wantErr bool
	}{
		{"", false},
		{"/bin/bash", false},
		{"/bin/sh", false},
		{"/bin/zsh", false},
		{"/usr/bin/fish", false},
		{"/usr/bin/python3", true},
		{"/bin/bash; rm -rf /", true},
		{"bash", true},
	}
	for _, tt := range tests {
		err := ValidateShell(tt.shell)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateShell(%q) error = %v, wantErr %v", tt.shell, err, tt.wantErr)
		}
	}
}

func TestSetAllowedShellsRestricts(t *testing.T) {
	orig := AllowedShells
	t.Cleanup(func() { AllowedShells = orig })

	t.Setenv("TERMTAB_ALLOWED_SHELLS", "/bin/rbash")
	config.Load()
	SetAllowedShells(config.Cfg.AllowedShells)

	if err := ValidateShell("/bin/zsh"); err == nil {
		t.Error("ValidateShell accepted /bin/zsh outside the configured allow-list")
	}
	if err := ValidateShell("/bin/rbash"); err != nil {
		t.Errorf("ValidateShell rejected the configured shell: %v", err)
	}
	// Empty means default shell and stays accepted regardless of the list.
	if err := ValidateShell(""); err != nil {
		t.Errorf("ValidateShell rejected the default shell: %v", err)
	}
}

func TestSetAllowedShellsEmptyKeepsDefaults(t *testing.T) {
	orig := AllowedShells
	t.Cleanup(func() { AllowedShells = orig })

	SetAllowedShells(nil)
	if err := ValidateShell("/bin/bash"); err != nil {
		t.Errorf("defaults lost after empty override: %v", err)
	}
}

// fakeProc is an in-memory shell: input is recorded, output is written by
// the test through a pipe.
type fakeProc struct {
	mu      sync.Mutex
	in      bytes.Buffer
	resizes []string

	outR *io.PipeReader
	outW *io.PipeWriter
}

func newFakeProc() *fakeProc {
	r, w := io.Pipe()
	return &fakeProc{outR: r, outW: w}
}

func (p *fakeProc) Stdin() io.Writer  { return procWriter{p} }
func (p *fakeProc) Stdout() io.Reader { return p.outR }

func (p *fakeProc) Resize(cols, rows uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizes = append(p.resizes, fmtGeom(cols, rows))
	return nil
}

func (p *fakeProc) Close() error {
	p.outW.Close()
	return nil
}

func (p *fakeProc) emit(s string) { p.outW.Write([]byte(s)) }

func (p *fakeProc) input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in.String()
}

func (p *fakeProc) lastResize() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.resizes) == 0 {
		return ""
	}
	return p.resizes[len(p.resizes)-1]
}

type procWriter struct{ p *fakeProc }

func (w procWriter) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	return w.p.in.Write(b)
}

func fmtGeom(cols, rows uint16) string {
	return fmt.Sprintf("%dx%d", cols, rows)
}

func newTestSurface() *surface.Fake {
	f := surface.NewFake(surface.Geometry{Cols: 80, Rows: 24})
	f.AutoAck = true
	return f
}

type fakeRunner struct {
	mu     sync.Mutex
	procs  []*fakeProc
	shells []string
	fail   bool
}

func (r *fakeRunner) Start(shell string, cols, rows uint16) (Proc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, io.ErrUnexpectedEOF
	}
	p := newFakeProc()
	r.procs = append(r.procs, p)
	r.shells = append(r.shells, shell)
	return p, nil
}

func (r *fakeRunner) shell(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < len(r.shells) {
		return r.shells[i]
	}
	return ""
}

func (r *fakeRunner) proc(i int) *fakeProc {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < len(r.procs) {
		return r.procs[i]
	}
	return nil
}

// startServer runs the daemon on an ephemeral port and returns its ws URL.
func startServer(t *testing.T, runner Runner) string {
	t.Helper()
	return startServerWith(t, &Server{Runner: runner})
}

func startServerWith(t *testing.T, srv *Server) string {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/pty"
}

func dialBackend(t *testing.T, url string) session.Conn {
	t.Helper()
	d := session.WebSocketDialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// receive reads one message with a deadline.
func receive(t *testing.T, conn session.Conn) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

func TestStartPtyHandshake(t *testing.T) {
	runner := &fakeRunner{}
	conn := dialBackend(t, startServer(t, runner))
	ctx := context.Background()

	if err := conn.Send(ctx, protocol.StartPty("sess-1", 80, 24)); err != nil {
		t.Fatalf("send StartPty: %v", err)
	}
	ack := receive(t, conn)
	if ack.Kind != protocol.KindSuccess || !ack.SessionReady() {
		t.Fatalf("ack = %+v, want started Success", ack)
	}
	if ack.SessionID != "sess-1" {
		t.Errorf("ack session = %q, want sess-1", ack.SessionID)
	}

	// Shell output comes back as Output messages.
	runner.proc(0).emit("$ ")
	out := receive(t, conn)
	if out.Kind != protocol.KindOutput || string(out.Data) != "$ " {
		t.Errorf("output = %+v", out)
	}

	// Input reaches the shell.
	if err := conn.Send(ctx, protocol.Input("sess-1", []byte("ls\r"))); err != nil {
		t.Fatalf("send Input: %v", err)
	}
	waitForCond(t, "input written", func() bool { return runner.proc(0).input() == "ls\r" })

	// Resize is clamped and forwarded to the PTY.
	if err := conn.Send(ctx, protocol.Resize("sess-1", 600, 40)); err != nil {
		t.Fatalf("send Resize: %v", err)
	}
	waitForCond(t, "resize applied", func() bool { return runner.proc(0).lastResize() == "500x40" })
}

func TestStartPtyZeroGeometryRejected(t *testing.T) {
	runner := &fakeRunner{}
	conn := dialBackend(t, startServer(t, runner))

	if err := conn.Send(context.Background(), protocol.StartPty("sess-1", 0, 0)); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := receive(t, conn)
	if msg.Kind != protocol.KindError {
		t.Fatalf("reply = %+v, want Error", msg)
	}
	if runner.proc(0) != nil {
		t.Error("shell started despite zero geometry")
	}
}

func TestStartFailureReportsError(t *testing.T) {
	runner := &fakeRunner{fail: true}
	conn := dialBackend(t, startServer(t, runner))

	if err := conn.Send(context.Background(), protocol.StartPty("sess-1", 80, 24)); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := receive(t, conn)
	if msg.Kind != protocol.KindError || !strings.Contains(msg.Text, "failed to start shell") {
		t.Fatalf("reply = %+v, want shell start error", msg)
	}
}

func TestInputTooLargeRejected(t *testing.T) {
	runner := &fakeRunner{}
	conn := dialBackend(t, startServer(t, runner))
	ctx := context.Background()

	conn.Send(ctx, protocol.StartPty("sess-1", 80, 24))
	receive(t, conn) // ack

	big := make([]byte, MaxInputMessageSize+1)
	if err := conn.Send(ctx, protocol.Input("sess-1", big)); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := receive(t, conn)
	if msg.Kind != protocol.KindError || !strings.Contains(msg.Text, "too large") {
		t.Fatalf("reply = %+v, want size error", msg)
	}
	if got := runner.proc(0).input(); got != "" {
		t.Errorf("oversized input reached the shell: %d bytes", len(got))
	}
}

func TestPauseHoldsOutput(t *testing.T) {
	runner := &fakeRunner{}
	conn := dialBackend(t, startServer(t, runner))
	ctx := context.Background()

	conn.Send(ctx, protocol.StartPty("sess-1", 80, 24))
	receive(t, conn) // ack

	if err := conn.Send(ctx, protocol.Pause("sess-1")); err != nil {
		t.Fatalf("send Pause: %v", err)
	}
	time.Sleep(50 * time.Millisecond) // let the pause land

	runner.proc(0).emit("held output")
	time.Sleep(50 * time.Millisecond)

	if err := conn.Send(ctx, protocol.Resume("sess-1")); err != nil {
		t.Fatalf("send Resume: %v", err)
	}
	// The held chunk is released only after the resume lands.
	out := receive(t, conn)
	if out.Kind != protocol.KindOutput || string(out.Data) != "held output" {
		t.Fatalf("output = %+v", out)
	}
}

func TestDefaultShellFromSettings(t *testing.T) {
	runner := &fakeRunner{}
	kv := store.NewMemoryKV()
	if err := kv.Set("default_shell", "/bin/zsh"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	conn := dialBackend(t, startServerWith(t, &Server{Runner: runner, Settings: kv}))

	if err := conn.Send(context.Background(), protocol.StartPty("sess-1", 80, 24)); err != nil {
		t.Fatalf("send: %v", err)
	}
	ack := receive(t, conn)
	if !ack.SessionReady() {
		t.Fatalf("ack = %+v", ack)
	}
	if got := runner.shell(0); got != "/bin/zsh" {
		t.Errorf("shell started = %q, want the configured /bin/zsh", got)
	}
}

func TestReconnectBumpsSessionRecord(t *testing.T) {
	runner := &fakeRunner{}
	st, err := store.Open(filepath.Join(t.TempDir(), "termtabd.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	url := startServerWith(t, &Server{Runner: runner, Store: st})
	ctx := context.Background()

	conn := dialBackend(t, url)
	conn.Send(ctx, protocol.StartPty("sess-r", 80, 24))
	receive(t, conn) // ack
	conn.Close()

	// The daemon records the close before it accepts the replacement.
	waitForCond(t, "session closed in store", func() bool {
		rec, err := st.GetSession("sess-r")
		return err == nil && rec.Status == "closed"
	})

	conn2 := dialBackend(t, url)
	conn2.Send(ctx, protocol.StartPty("sess-r", 100, 30))
	ack := receive(t, conn2)
	if !ack.SessionReady() {
		t.Fatalf("reconnect ack = %+v", ack)
	}

	rec, err := st.GetSession("sess-r")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec.Reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", rec.Reconnects)
	}
	if rec.Status != "active" {
		t.Errorf("status = %q, want active after reconnect", rec.Status)
	}
	if rec.Cols != 100 || rec.Rows != 30 {
		t.Errorf("geometry = %dx%d, want 100x30", rec.Cols, rec.Rows)
	}
}

func TestEndToEndSessionAgainstRealServer(t *testing.T) {
	runner := &fakeRunner{}
	url := startServer(t, runner)

	surf := newTestSurface()
	cfg := session.DefaultConfig(url)
	cfg.Gate.SettleDelay = time.Millisecond
	cfg.Gate.PollInterval = time.Millisecond
	s := session.New("e2e-1", cfg, session.WebSocketDialer{Timeout: 2 * time.Second}, surf)
	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	waitForCond(t, "active state", func() bool { return s.State() == session.StateActive })

	runner.proc(0).emit("welcome\r\n")
	waitForCond(t, "output rendered", func() bool { return strings.Contains(surf.Rendered(), "welcome") })

	surf.EmitInput([]byte("uptime\r"))
	waitForCond(t, "input relayed", func() bool { return runner.proc(0).input() == "uptime\r" })
}

func waitForCond(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
