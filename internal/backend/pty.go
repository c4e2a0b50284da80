// Package backend implements the termtabd side of the PTY protocol: it
// accepts WebSocket connections, starts shell processes on a PTY (locally or
// on a remote SSH host), and relays output and input as control messages.
package backend

import (
	"fmt"
	"io"
)

// AllowedShells is the set of shells permitted for interactive sessions.
// Requests for anything else are rejected. Overridden at daemon startup via
// SetAllowedShells from the TERMTAB_ALLOWED_SHELLS setting.
var AllowedShells = map[string]bool{
	"/bin/bash":     true,
	"/bin/sh":       true,
	"/bin/zsh":      true,
	"/usr/bin/fish": true,
}

// SetAllowedShells replaces the allow-list. An empty slice is ignored so a
// misconfigured daemon keeps the default list instead of rejecting every
// shell.
func SetAllowedShells(shells []string) {
	if len(shells) == 0 {
		return
	}
	allowed := make(map[string]bool, len(shells))
	for _, sh := range shells {
		if sh != "" {
			allowed[sh] = true
		}
	}
	if len(allowed) == 0 {
		return
	}
	AllowedShells = allowed
}

// MaxInputMessageSize caps a single input message. Larger payloads are
// rejected rather than written to the PTY.
const MaxInputMessageSize = 64 * 1024

// MaxResizeCols and MaxResizeRows bound resize requests.
const (
	MaxResizeCols uint16 = 500
	MaxResizeRows uint16 = 500
)

// ValidateShell checks the shell against the allow-list. Empty means the
// default shell and is accepted.
func ValidateShell(shell string) error {
	if shell == "" {
		return nil
	}
	if AllowedShells[shell] {
		return nil
	}
	return fmt.Errorf("shell %q is not in the allowed list", shell)
}

// Proc is one running shell on a PTY.
type Proc interface {
	// Stdin accepts keystroke bytes for the shell.
	Stdin() io.Writer
	// Stdout streams the PTY output.
	Stdout() io.Reader
	// Resize changes the PTY dimensions.
	Resize(cols, rows uint16) error
	// Close terminates the shell and releases the PTY.
	Close() error
}

// Runner starts shells. The daemon ships two: local PTYs via creack/pty and
// remote ones over SSH.
type Runner interface {
	Start(shell string, cols, rows uint16) (Proc, error)
}
