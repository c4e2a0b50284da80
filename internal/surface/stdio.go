package surface

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"
)

// Stdio renders to the controlling terminal. It is the surface used by the
// termtab CLI: output goes to stdout, keystrokes are pumped from stdin, and
// resize events come from SIGWINCH. The caller is responsible for putting
// the terminal into raw mode (see cmd/termtab).
type Stdio struct {
	in  *os.File
	out *os.File

	mu       sync.Mutex
	inputFns map[int]func([]byte)
	resizeFns map[int]func(Geometry)
	nextID   int
	started  bool
	stop     chan struct{}
}

// NewStdio creates a surface over the given terminal files. Passing nil uses
// os.Stdin and os.Stdout.
func NewStdio(in, out *os.File) *Stdio {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Stdio{
		in:        in,
		out:       out,
		inputFns:  make(map[int]func([]byte)),
		resizeFns: make(map[int]func(Geometry)),
		stop:      make(chan struct{}),
	}
}

// Size returns the terminal dimensions, or zero geometry if the output is
// not a terminal.
func (s *Stdio) Size() Geometry {
	cols, rows, err := term.GetSize(int(s.out.Fd()))
	if err != nil {
		return Geometry{}
	}
	return Geometry{Cols: cols, Rows: rows}
}

// RequestLayout is a no-op: a real terminal always has current dimensions.
func (s *Stdio) RequestLayout() {}

// Write renders a chunk to the terminal.
func (s *Stdio) Write(p []byte) {
	s.out.Write(p)
}

// WriteAck renders a chunk and acknowledges immediately: terminal writes are
// synchronous, so the chunk is consumed when Write returns.
func (s *Stdio) WriteAck(p []byte, done func()) {
	s.out.Write(p)
	done()
}

// Banner renders diagnostic text on its own line, dimmed so it stands apart
// from session output.
func (s *Stdio) Banner(text string) {
	fmt.Fprintf(s.out, "\r\n\x1b[2m%s\x1b[0m\r\n", text)
}

// OnInput subscribes to stdin bytes. The first subscription starts the
// stdin pump and the SIGWINCH watcher.
func (s *Stdio) OnInput(fn func(data []byte)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.inputFns[id] = fn
	s.ensurePumpsLocked()
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.inputFns, id)
		s.mu.Unlock()
	}
}

// OnResize subscribes to SIGWINCH-driven geometry changes.
func (s *Stdio) OnResize(fn func(g Geometry)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.resizeFns[id] = fn
	s.ensurePumpsLocked()
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.resizeFns, id)
		s.mu.Unlock()
	}
}

// Close stops the stdin pump and signal watcher.
func (s *Stdio) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		close(s.stop)
		s.started = false
	}
}

// ensurePumpsLocked starts the stdin reader and SIGWINCH watcher once.
// Caller holds s.mu.
func (s *Stdio) ensurePumpsLocked() {
	if s.started {
		return
	}
	s.started = true

	go s.readInput()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(winch)
		for {
			select {
			case <-winch:
				g := s.Size()
				s.mu.Lock()
				fns := make([]func(Geometry), 0, len(s.resizeFns))
				for _, fn := range s.resizeFns {
					fns = append(fns, fn)
				}
				s.mu.Unlock()
				for _, fn := range fns {
					fn(g)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Stdio) readInput() {
	buf := make([]byte, 4096)
	for {
		n, err := s.in.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.mu.Lock()
			fns := make([]func([]byte), 0, len(s.inputFns))
			for _, fn := range s.inputFns {
				fns = append(fns, fn)
			}
			s.mu.Unlock()
			for _, fn := range fns {
				fn(data)
			}
		}
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "stdin read: %v\n", err)
			}
			return
		}
		select {
		case <-s.stop:
			return
		default:
		}
	}
}
