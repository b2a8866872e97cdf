// Package transport defines the realtime socket contract the chat client
// runs on. Framing, handshake and keepalive belong to the implementation.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// Local lifecycle events, synthesized by the socket itself.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// Server events.
const (
	EventJoinRoom    = "chat-join-room"
	EventJoinedRoom  = "chat-joined-room"
	EventMessage     = "chat-msg"
	EventPeerLeft    = "chat-disconnected"
	EventServerError = "error"
)

// ErrNotConnected is returned by Emit when the socket has no live connection.
// Nothing is buffered.
var ErrNotConnected = errors.New("transport: not connected")

// ErrClosed is returned by Connect on a socket that was disconnected.
var ErrClosed = errors.New("transport: socket closed")

// Listener handles one event payload. Listeners run on the socket's delivery
// goroutine and must not block for long.
type Listener func(payload json.RawMessage)

// Socket is a single realtime connection handle.
type Socket interface {
	// On registers fn for event. Several listeners per event are allowed.
	On(event string, fn Listener)
	// RemoveAllListeners drops every registration.
	RemoveAllListeners()
	// Connect opens the connection. It delivers EventConnect on success and
	// EventConnectError on failure before returning.
	Connect(ctx context.Context) error
	// Emit sends event with a JSON-encodable payload.
	Emit(event string, payload any) error
	// Disconnect closes the connection. No EventDisconnect is delivered for a
	// close requested through this method.
	Disconnect() error
}

// Factory creates a fresh, unconnected socket.
type Factory func() Socket

// Envelope is the wire frame: one event per text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DisconnectInfo is the payload of EventDisconnect. Error is set when the
// connection dropped abnormally.
type DisconnectInfo struct {
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

// ConnectErrorInfo is the payload of EventConnectError.
type ConnectErrorInfo struct {
	Message string `json:"message,omitempty"`
}

// Encode marshals payload for delivery to a Listener.
func Encode(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return b
}
