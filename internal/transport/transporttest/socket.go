// Package transporttest provides an in-memory transport.Socket for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/transport"
)

// Emitted records one Emit call.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Socket is a scriptable transport.Socket. Events are delivered
// synchronously on the calling goroutine.
type Socket struct {
	// ConnectErr makes Connect fail with a connect_error carrying its message.
	ConnectErr error
	// Pending makes Connect return without connecting; call Accept later.
	Pending bool

	mu        sync.Mutex
	listeners map[string][]transport.Listener
	connected bool
	closed    bool
	connects  int
	emitted   []Emitted
}

// New creates an unconnected socket.
func New() *Socket {
	return &Socket{listeners: make(map[string][]transport.Listener)}
}

func (s *Socket) On(event string, fn transport.Listener) {
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], fn)
	s.mu.Unlock()
}

func (s *Socket) RemoveAllListeners() {
	s.mu.Lock()
	s.listeners = make(map[string][]transport.Listener)
	s.mu.Unlock()
}

func (s *Socket) Connect(_ context.Context) error {
	s.mu.Lock()
	s.connects++
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	if err := s.ConnectErr; err != nil {
		s.mu.Unlock()
		s.Deliver(transport.EventConnectError, transport.ConnectErrorInfo{Message: err.Error()})
		return err
	}
	pending := s.Pending
	s.mu.Unlock()
	if pending {
		return nil
	}
	s.Accept()
	return nil
}

// Accept completes a pending Connect.
func (s *Socket) Accept() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.Deliver(transport.EventConnect, nil)
}

func (s *Socket) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return transport.ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.emitted = append(s.emitted, Emitted{Event: event, Payload: data})
	return nil
}

func (s *Socket) Disconnect() error {
	s.mu.Lock()
	s.closed = true
	s.connected = false
	s.mu.Unlock()
	return nil
}

// Deliver dispatches a server or lifecycle event to the registered listeners.
func (s *Socket) Deliver(event string, payload any) {
	s.mu.Lock()
	fns := slices.Clone(s.listeners[event])
	s.mu.Unlock()
	raw := transport.Encode(payload)
	for _, fn := range fns {
		fn(raw)
	}
}

// Drop simulates the server side going away.
func (s *Socket) Drop(info transport.DisconnectInfo) {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.Deliver(transport.EventDisconnect, info)
}

// Connects reports how many times Connect was called.
func (s *Socket) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Emitted returns a copy of every successful Emit.
func (s *Socket) Emitted() []Emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.emitted)
}

// Listeners reports how many listeners are registered for event.
func (s *Socket) Listeners(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[event])
}

// Closed reports whether Disconnect was called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Factory hands out Sockets and remembers them.
type Factory struct {
	// Configure, when set, runs on every new socket before it is returned.
	Configure func(*Socket)

	mu      sync.Mutex
	sockets []*Socket
}

// New implements transport.Factory.
func (f *Factory) New() transport.Socket {
	s := New()
	if f.Configure != nil {
		f.Configure(s)
	}
	f.mu.Lock()
	f.sockets = append(f.sockets, s)
	f.mu.Unlock()
	return s
}

// Count reports how many sockets were created.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sockets)
}

// Last returns the most recently created socket, or nil.
func (f *Factory) Last() *Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sockets) == 0 {
		return nil
	}
	return f.sockets[len(f.sockets)-1]
}

// Socket returns the i-th created socket.
func (f *Factory) Socket(i int) *Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sockets[i]
}
