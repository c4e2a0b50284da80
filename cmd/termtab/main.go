// termtab is the interactive client: it puts the controlling terminal into
// raw mode, opens a PTY session against a termtabd backend, and bridges
// keystrokes and output until interrupted.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/termtab/termtab/internal/config"
	"github.com/termtab/termtab/internal/flowctl"
	"github.com/termtab/termtab/internal/geometry"
	"github.com/termtab/termtab/internal/session"
	"github.com/termtab/termtab/internal/store"
	"github.com/termtab/termtab/internal/surface"
)

// resolveEndpoint picks the backend endpoint: a profile or saved session
// named on the command line wins over the configured default. The YAML
// profiles file is consulted first, then the SQLite store.
func resolveEndpoint() string {
	endpoint := config.Cfg.BackendURL
	if len(os.Args) < 2 {
		return endpoint
	}
	title := os.Args[1]

	if config.Cfg.ProfilesPath != "" {
		profiles, err := config.LoadProfiles(config.Cfg.ProfilesPath)
		if err != nil {
			log.Printf("[termtab] profiles file: %v", err)
		} else if p := config.FindProfile(profiles, title); p != nil && p.Endpoint != "" {
			return p.Endpoint
		}
	}

	if config.Cfg.DataPath == "" {
		return endpoint
	}
	st, err := store.Open(config.Cfg.DataPath)
	if err != nil {
		log.Printf("[termtab] open store: %v", err)
		return endpoint
	}
	defer st.Close()
	rec, err := st.GetSessionByTitle(title)
	if err != nil {
		log.Printf("[termtab] no saved session %q, using default endpoint", title)
		return endpoint
	}
	if rec.Endpoint != "" {
		endpoint = rec.Endpoint
	}
	return endpoint
}

func main() {
	config.Load()
	endpoint := resolveEndpoint()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "termtab: stdin is not a terminal")
		os.Exit(1)
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		log.Fatalf("[termtab] raw mode: %v", err)
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	surf := surface.NewStdio(os.Stdin, os.Stdout)
	defer surf.Close()

	cfg := session.Config{
		Endpoint:       endpoint,
		ReconnectDelay: config.Cfg.ReconnectDelay,
		MaxReconnects:  config.Cfg.MaxReconnects,
		DialTimeout:    config.Cfg.DialTimeout,
		Gate:           geometry.NewGate(),
		Flow: flowctl.Config{
			Limit:     config.Cfg.FlowLimit,
			HighWater: config.Cfg.FlowHighWater,
			LowWater:  config.Cfg.FlowLowWater,
		},
	}
	cfg.Gate.MinCols = config.Cfg.MinCols
	cfg.Gate.MinRows = config.Cfg.MinRows

	dialer := session.WebSocketDialer{Timeout: cfg.DialTimeout}
	s := session.New("", cfg, dialer, surf)

	closed := make(chan struct{})
	s.OnStateChange(func(_, to session.State) {
		if to == session.StateClosed {
			close(closed)
		}
	})

	if err := s.Open(); err != nil {
		log.Fatalf("[termtab] open session: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)

	select {
	case <-closed:
	case <-sigCh:
		s.Close()
	}
}
