// Package config loads runtime settings from the environment.
package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds the knobs for both the termtab client and the termtabd
// backend daemon. Everything has a working default so a bare `termtab`
// against a local daemon needs no environment at all.
type Settings struct {
	// Client side.
	BackendURL     string        `envconfig:"BACKEND_URL" default:"ws://127.0.0.1:7681/ws/pty"`
	ProfilesPath   string        `envconfig:"PROFILES_PATH" default:""`
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"2s"`
	MaxReconnects  int           `envconfig:"MAX_RECONNECTS" default:"0"`
	DialTimeout    time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`

	// Flow control.
	FlowLimit     int `envconfig:"FLOW_LIMIT" default:"10000"`
	FlowHighWater int `envconfig:"FLOW_HIGH_WATER" default:"5"`
	FlowLowWater  int `envconfig:"FLOW_LOW_WATER" default:"2"`

	// Geometry gate.
	MinCols int `envconfig:"MIN_COLS" default:"40"`
	MinRows int `envconfig:"MIN_ROWS" default:"5"`

	// Daemon side.
	ListenAddr    string   `envconfig:"LISTEN_ADDR" default:"127.0.0.1:7681"`
	DataPath      string   `envconfig:"DATA_PATH" default:""`
	Shell         string   `envconfig:"SHELL_CMD" default:""`
	AllowedShells []string `envconfig:"ALLOWED_SHELLS" default:"/bin/bash,/bin/sh,/bin/zsh,/usr/bin/fish"`

	// SSH host mode (optional; empty SSHHost keeps sessions local).
	SSHHost    string `envconfig:"SSH_HOST" default:""`
	SSHPort    int    `envconfig:"SSH_PORT" default:"22"`
	SSHUser    string `envconfig:"SSH_USER" default:""`
	SSHKeyPath string `envconfig:"SSH_KEY_PATH" default:""`
}

var Cfg Settings

// Load populates Cfg from TERMTAB_* environment variables.
func Load() {
	if err := envconfig.Process("TERMTAB", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
