// transport.go owns the duplex channel to the PTY backend.
//
// The session core talks to the backend through the Conn interface, one
// control message at a time; the production implementation carries messages
// as JSON text frames over a WebSocket. Tests substitute an in-process Conn.

package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"

	"github.com/termtab/termtab/internal/protocol"
)

// maxFrameSize bounds a single inbound frame. Output frames from a PTY are
// chunked well below this; anything larger is a protocol violation.
const maxFrameSize = 1024 * 1024

// Conn is a single duplex control-message channel to the backend. Each
// connection carries exactly one session; connections are not pooled.
type Conn interface {
	// Send writes one control message.
	Send(ctx context.Context, msg protocol.Message) error
	// Receive blocks for the next well-formed control message. Malformed
	// frames are logged and skipped; an error means the channel is gone.
	Receive(ctx context.Context) (protocol.Message, error)
	// Close tears the channel down.
	Close() error
}

// Dialer opens a Conn to a backend endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketDialer dials the backend's WebSocket endpoint. Timeout bounds the
// connect attempt itself, distinct from the session's reconnect delay, so a
// hung dial cannot stall the state machine indefinitely.
type WebSocketDialer struct {
	Timeout time.Duration
}

// Dial opens a WebSocket connection to the endpoint.
func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial backend %s: %w", endpoint, err)
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a coder/websocket connection to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) (protocol.Message, error) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("receive: %w", err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames must not take the session down.
			log.Printf("[transport] dropping malformed frame: %v", err)
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
