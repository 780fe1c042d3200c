// Package protocol defines the JSON frame exchanged over the chat socket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type identifies a frame kind. Exactly six kinds are valid on the wire.
type Type string

const (
	// TypeConnected is the server's handshake frame, sent once per socket.
	TypeConnected Type = "connected"
	// TypeUserMessage carries a user turn from client to server.
	TypeUserMessage Type = "user_message"
	// TypeTyping signals that the assistant is composing a reply.
	TypeTyping Type = "typing"
	// TypeAgentResponse carries one fragment of the assistant reply.
	TypeAgentResponse Type = "agent_response"
	// TypeDone terminates a successful assistant turn.
	TypeDone Type = "done"
	// TypeError terminates a failed assistant turn with a readable cause.
	TypeError Type = "error"
)

// Message roles for persisted turns. Control frames carry no role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUnknownType reports a frame whose type is not one of the six kinds.
	ErrUnknownType = errors.New("protocol: unknown frame type")
	// ErrMissingSessionID reports a frame without a session id where one is required.
	ErrMissingSessionID = errors.New("protocol: missing sessionId")
	// ErrMissingContent reports a frame without content where content is required.
	ErrMissingContent = errors.New("protocol: missing content")
)

// Frame is one JSON message on the socket. Ordering is carried by arrival
// order; Timestamp is advisory only.
type Frame struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Role      string `json:"role,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Validate checks the frame against the wire schema. It must pass before a
// frame is acted upon; callers decide whether a failure is dropped (client)
// or answered with an error frame (server).
func (f Frame) Validate() error {
	switch f.Type {
	case TypeConnected:
		// Handshake carries no session id and no content.
		return nil
	case TypeUserMessage, TypeAgentResponse:
		if f.SessionID == "" {
			return fmt.Errorf("%w on %q frame", ErrMissingSessionID, f.Type)
		}
		if f.Content == "" {
			return fmt.Errorf("%w on %q frame", ErrMissingContent, f.Type)
		}
		return nil
	case TypeError:
		if f.SessionID == "" {
			return fmt.Errorf("%w on %q frame", ErrMissingSessionID, f.Type)
		}
		if f.Content == "" {
			return fmt.Errorf("%w on %q frame", ErrMissingContent, f.Type)
		}
		return nil
	case TypeTyping, TypeDone:
		if f.SessionID == "" {
			return fmt.Errorf("%w on %q frame", ErrMissingSessionID, f.Type)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}

// Encode serializes the frame as one JSON object.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %q frame: %w", f.Type, err)
	}
	return data, nil
}

// Decode parses and validates a single inbound frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Now returns the advisory timestamp format used on outbound frames.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Connected builds the server handshake frame.
func Connected() Frame {
	return Frame{Type: TypeConnected, Timestamp: Now()}
}

// UserMessage builds an outbound user turn frame.
func UserMessage(sessionID, content string) Frame {
	return Frame{Type: TypeUserMessage, SessionID: sessionID, Content: content, Role: RoleUser, Timestamp: Now()}
}

// Typing builds the composing signal for a session.
func Typing(sessionID string) Frame {
	return Frame{Type: TypeTyping, SessionID: sessionID, Timestamp: Now()}
}

// AgentResponse builds one assistant content fragment.
func AgentResponse(sessionID, fragment string) Frame {
	return Frame{Type: TypeAgentResponse, SessionID: sessionID, Content: fragment, Role: RoleAssistant, Timestamp: Now()}
}

// Done builds the successful turn terminator.
func Done(sessionID string) Frame {
	return Frame{Type: TypeDone, SessionID: sessionID, Timestamp: Now()}
}

// Error builds the failed turn terminator with a human-readable cause.
func Error(sessionID, cause string) Frame {
	return Frame{Type: TypeError, SessionID: sessionID, Content: cause, Timestamp: Now()}
}
