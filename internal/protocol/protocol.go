// Package protocol defines the JSON control-message protocol spoken between
// the terminal front end and the local PTY backend over a WebSocket.
//
// Every frame is a single Message with a Kind discriminator. Client → backend
// kinds are StartPty, Input, Resize, Pause, Resume and Close; backend → client
// kinds are Success, Output and Error. Output and Input payloads are raw bytes
// (base64 in the JSON encoding, handled by encoding/json).
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the type of a control message.
type Kind string

const (
	// Client → backend.
	KindStartPty Kind = "start_pty"
	KindInput    Kind = "input"
	KindResize   Kind = "resize"
	KindPause    Kind = "pause"
	KindResume   Kind = "resume"
	KindClose    Kind = "close"

	// Backend → client.
	KindSuccess Kind = "success"
	KindOutput  Kind = "output"
	KindError   Kind = "error"
)

// AckStatus is the typed status carried by Success messages. Older backends
// only send a free-form message string; see Message.SessionReady.
type AckStatus string

const (
	// StatusStarted acknowledges that the PTY session is up and streaming.
	StatusStarted AckStatus = "started"
	// StatusOK acknowledges any other request.
	StatusOK AckStatus = "ok"
)

// legacyReadyText is the substring older backends embed in the Success
// message to signal session readiness. Kept for compatibility.
const legacyReadyText = "PTY session started"

// Message is one control frame. Fields beyond Kind and SessionID are
// populated per kind: Cols/Rows for StartPty and Resize, Data for Input and
// Output, Text and Status for Success and Error.
type Message struct {
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	Cols      uint16    `json:"cols,omitempty"`
	Rows      uint16    `json:"rows,omitempty"`
	Data      []byte    `json:"data,omitempty"`
	Text      string    `json:"message,omitempty"`
	Status    AckStatus `json:"status,omitempty"`
}

// SessionReady reports whether a Success message signals that the PTY
// session has started. The typed status is authoritative; the legacy
// substring match is accepted for backends that predate it.
func (m Message) SessionReady() bool {
	if m.Kind != KindSuccess {
		return false
	}
	if m.Status == StatusStarted {
		return true
	}
	return strings.Contains(m.Text, legacyReadyText)
}

// StartPty builds the session-start request for the given geometry.
func StartPty(sessionID string, cols, rows uint16) Message {
	return Message{Kind: KindStartPty, SessionID: sessionID, Cols: cols, Rows: rows}
}

// Input wraps keystroke bytes for a session.
func Input(sessionID string, data []byte) Message {
	return Message{Kind: KindInput, SessionID: sessionID, Data: data}
}

// Resize notifies the backend of a geometry change.
func Resize(sessionID string, cols, rows uint16) Message {
	return Message{Kind: KindResize, SessionID: sessionID, Cols: cols, Rows: rows}
}

// Pause asks the backend to stop sending Output frames.
func Pause(sessionID string) Message {
	return Message{Kind: KindPause, SessionID: sessionID}
}

// Resume asks the backend to continue sending Output frames.
func Resume(sessionID string) Message {
	return Message{Kind: KindResume, SessionID: sessionID}
}

// Close requests session termination.
func Close(sessionID string) Message {
	return Message{Kind: KindClose, SessionID: sessionID}
}

// Encode serializes a message to its JSON wire form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.Kind, err)
	}
	return data, nil
}

// Decode parses a JSON wire frame. A frame that is not valid JSON or has no
// kind yields an error; callers log and drop such frames rather than
// terminating the session.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if m.Kind == "" {
		return Message{}, fmt.Errorf("decode message: missing kind")
	}
	return m, nil
}
