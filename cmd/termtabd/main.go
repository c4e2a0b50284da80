// termtabd is the PTY backend daemon: it accepts WebSocket connections on
// /ws/pty and runs shells on local PTYs or on a remote SSH host.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/termtab/termtab/internal/backend"
	"github.com/termtab/termtab/internal/config"
	"github.com/termtab/termtab/internal/store"
)

func main() {
	config.Load()
	backend.SetAllowedShells(config.Cfg.AllowedShells)

	srv := &backend.Server{}

	if config.Cfg.SSHHost != "" {
		runner := &backend.SSHRunner{
			Host:    config.Cfg.SSHHost,
			Port:    config.Cfg.SSHPort,
			User:    config.Cfg.SSHUser,
			KeyPath: config.Cfg.SSHKeyPath,
		}
		if err := runner.Connect(); err != nil {
			log.Fatalf("[termtabd] ssh connect: %v", err)
		}
		defer runner.Close()
		srv.Runner = runner
		log.Printf("[termtabd] running shells on %s@%s", config.Cfg.SSHUser, config.Cfg.SSHHost)
	} else {
		srv.Runner = backend.LocalRunner{Shell: config.Cfg.Shell}
	}

	if config.Cfg.DataPath != "" {
		st, err := store.Open(config.Cfg.DataPath)
		if err != nil {
			log.Fatalf("[termtabd] open store: %v", err)
		}
		defer st.Close()
		srv.Store = st
		srv.Settings = st
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[termtabd] listening on %s", config.Cfg.ListenAddr)
	if err := srv.Serve(ctx, config.Cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[termtabd] server: %v", err)
	}
}
