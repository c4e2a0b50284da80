package backend

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// LocalRunner starts shells on local PTYs. Shell is the default command when
// a start request does not name one; empty falls back to $SHELL, then
// /bin/bash.
type LocalRunner struct {
	Shell string
}

// Start launches the shell on a fresh PTY sized to the given geometry.
func (r LocalRunner) Start(shell string, cols, rows uint16) (Proc, error) {
	if shell == "" {
		shell = r.Shell
	}
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	if err := ValidateShell(shell); err != nil {
		return nil, err
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("start shell %q: %w", shell, err)
	}
	return &localProc{f: f, cmd: cmd}, nil
}

type localProc struct {
	f   *os.File
	cmd *exec.Cmd
}

func (p *localProc) Stdin() io.Writer  { return p.f }
func (p *localProc) Stdout() io.Reader { return p.f }

func (p *localProc) Resize(cols, rows uint16) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: cols, Rows: rows})
}

func (p *localProc) Close() error {
	p.f.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}
