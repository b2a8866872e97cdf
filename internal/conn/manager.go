package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

const (
	fallbackConnectError = "connect_error"
	fallbackServerError  = "server error"
)

// Status is a snapshot of connectivity.
type Status struct {
	Connected  bool
	Connecting bool
	Error      string
}

type handler struct {
	event string
	fn    transport.Listener
}

// Manager owns the single chat socket. A socket is created lazily by
// Connect and released by Disconnect; at most one exists at a time.
type Manager struct {
	factory transport.Factory
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu        sync.Mutex
	socket    transport.Socket
	lastErr   string
	handlers  []handler
	onConnect []func()
}

// New creates a manager. machine must start Disconnected.
func New(factory transport.Factory, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		factory: factory,
		machine: machine,
		bus:     b,
		logger:  logger,
	}
}

// Handle registers a listener for a server event. It is bound to the
// current socket, if any, and to every socket created later.
func (m *Manager) Handle(event string, fn transport.Listener) {
	m.mu.Lock()
	m.handlers = append(m.handlers, handler{event: event, fn: fn})
	s := m.socket
	m.mu.Unlock()
	if s != nil {
		s.On(event, m.guard(s, fn))
	}
}

// OnConnect registers fn to run every time the socket becomes connected.
func (m *Manager) OnConnect(fn func()) {
	m.mu.Lock()
	m.onConnect = append(m.onConnect, fn)
	m.mu.Unlock()
}

// Connect opens the socket unless it is already connecting or connected.
// Failures are recorded in Status().Error and also returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.machine.Current() != status.Disconnected {
		m.mu.Unlock()
		return nil
	}
	s := m.socketLocked()
	if err := m.machine.Transition(status.Connecting); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	m.logger.Info("connecting to chat server")
	if err := s.Connect(ctx); err != nil {
		m.mu.Lock()
		if m.socket == s && m.machine.Current() == status.Connecting {
			_ = m.machine.Transition(status.Disconnected)
			if m.lastErr == "" {
				m.lastErr = err.Error()
			}
		}
		m.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes and releases the socket, dropping every listener bound
// to it. The state is Disconnected when it returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.socket
	if s == nil {
		m.mu.Unlock()
		return
	}
	m.socket = nil
	m.machine.Reset()
	m.mu.Unlock()

	if err := s.Disconnect(); err != nil {
		m.logger.Warn("socket close failed", zap.Error(err))
	}
	s.RemoveAllListeners()
	m.logger.Info("disconnected from chat server")
}

// Emit sends an event on the current socket. Without a socket, or while it
// is not connected, the event is dropped and transport.ErrNotConnected returned.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	s := m.socket
	m.mu.Unlock()
	if s == nil {
		return transport.ErrNotConnected
	}
	return s.Emit(event, payload)
}

// Status returns the current connectivity snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.machine.Current()
	return Status{
		Connected:  st == status.Connected,
		Connecting: st == status.Connecting,
		Error:      m.lastErr,
	}
}

func (m *Manager) socketLocked() transport.Socket {
	if m.socket != nil {
		return m.socket
	}
	s := m.factory()
	s.On(transport.EventConnect, m.guard(s, func(json.RawMessage) { m.connected() }))
	s.On(transport.EventConnectError, m.guard(s, m.connectFailed))
	s.On(transport.EventDisconnect, m.guard(s, m.dropped))
	s.On(transport.EventServerError, m.guard(s, m.serverError))
	for _, h := range m.handlers {
		s.On(h.event, m.guard(s, h.fn))
	}
	m.socket = s
	return s
}

// guard drops events from a socket that is no longer the current one.
func (m *Manager) guard(s transport.Socket, fn transport.Listener) transport.Listener {
	return func(payload json.RawMessage) {
		m.mu.Lock()
		current := m.socket == s
		m.mu.Unlock()
		if current {
			fn(payload)
		}
	}
}

func (m *Manager) connected() {
	if err := m.machine.Transition(status.Connected); err != nil {
		m.logger.Debug("ignoring connect event", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.lastErr = ""
	hooks := slices.Clone(m.onConnect)
	m.mu.Unlock()

	m.logger.Info("connected to chat server")
	for _, fn := range hooks {
		fn()
	}
}

func (m *Manager) connectFailed(payload json.RawMessage) {
	var info transport.ConnectErrorInfo
	_ = json.Unmarshal(payload, &info)
	msg := info.Message
	if msg == "" {
		msg = fallbackConnectError
	}
	m.fail(msg)
	_ = m.machine.Transition(status.Disconnected)
	m.logger.Warn("connect failed", zap.String("error", msg))
}

func (m *Manager) dropped(payload json.RawMessage) {
	var info transport.DisconnectInfo
	_ = json.Unmarshal(payload, &info)
	if info.Error != "" {
		m.fail(info.Error)
	}
	_ = m.machine.Transition(status.Disconnected)
	m.logger.Warn("connection lost", zap.String("reason", info.Reason), zap.String("error", info.Error))
}

func (m *Manager) serverError(payload json.RawMessage) {
	var msg string
	if err := json.Unmarshal(payload, &msg); err != nil {
		msg = string(payload)
	}
	if msg == "" {
		msg = fallbackServerError
	}
	m.fail(msg)
	m.logger.Warn("server error", zap.String("error", msg))
}

func (m *Manager) fail(msg string) {
	m.mu.Lock()
	m.lastErr = msg
	m.mu.Unlock()
	m.bus.Publish(bus.NewEvent(bus.KindError, msg))
}
