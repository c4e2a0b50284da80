package backend

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"golang.org/x/crypto/ssh"
)

// SSHRunner starts shells on a remote host over SSH, one ssh.Session with a
// requested PTY per shell.
type SSHRunner struct {
	Host    string
	Port    int
	User    string
	KeyPath string

	client *ssh.Client
}

// Connect dials the remote host and authenticates with the configured key.
func (r *SSHRunner) Connect() error {
	key, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("parse ssh key: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	addr := net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("dial ssh %s: %w", addr, err)
	}
	r.client = client
	return nil
}

// Close tears down the SSH connection.
func (r *SSHRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Start opens a new SSH session with a PTY and runs the shell on it.
func (r *SSHRunner) Start(shell string, cols, rows uint16) (Proc, error) {
	if err := ValidateShell(shell); err != nil {
		return nil, err
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	if r.client == nil {
		return nil, fmt.Errorf("ssh runner not connected")
	}

	session, err := r.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", int(rows), int(cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Start(shell); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell %q: %w", shell, err)
	}

	return &sshProc{stdin: stdin, stdout: stdout, session: session}, nil
}

type sshProc struct {
	stdin   io.WriteCloser
	stdout  io.Reader
	session *ssh.Session
}

func (p *sshProc) Stdin() io.Writer  { return p.stdin }
func (p *sshProc) Stdout() io.Reader { return p.stdout }

func (p *sshProc) Resize(cols, rows uint16) error {
	return p.session.WindowChange(int(rows), int(cols))
}

func (p *sshProc) Close() error {
	return p.session.Close()
}
