package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 20 * time.Second
	writeWait               = 10 * time.Second
	maxMessageSize          = 1 << 20
)

// Options configures a Socket.
type Options struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Socket is a transport.Socket over a gorilla/websocket connection. Each
// event travels as one JSON text frame holding a transport.Envelope.
//
// A Socket may reconnect after the server drops it, but Disconnect is
// final: the owner creates a new Socket afterwards.
type Socket struct {
	opts   Options
	dialer *websocket.Dialer
	logger *zap.Logger

	mu        sync.Mutex
	listeners map[string][]transport.Listener
	conn      *websocket.Conn
	closed    bool

	writeMu sync.Mutex
}

// New creates an unconnected socket.
func New(opts Options) *Socket {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Socket{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		logger:    logger,
		listeners: make(map[string][]transport.Listener),
	}
}

// NewFactory returns a transport.Factory producing sockets for opts.
func NewFactory(opts Options) transport.Factory {
	return func() transport.Socket { return New(opts) }
}

// On implements transport.Socket.
func (s *Socket) On(event string, fn transport.Listener) {
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], fn)
	s.mu.Unlock()
}

// RemoveAllListeners implements transport.Socket.
func (s *Socket) RemoveAllListeners() {
	s.mu.Lock()
	s.listeners = make(map[string][]transport.Listener)
	s.mu.Unlock()
}

// Connect implements transport.Socket.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, resp, err := s.dialer.DialContext(ctx, s.opts.URL, s.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.dispatch(transport.EventConnectError, transport.Encode(transport.ConnectErrorInfo{Message: err.Error()}))
		}
		return fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return transport.ErrClosed
	}
	if s.conn != nil {
		// Lost a race with a concurrent Connect.
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("websocket connected", zap.String("url", s.opts.URL))
	s.dispatch(transport.EventConnect, nil)
	go s.readLoop(conn)
	return nil
}

// Emit implements transport.Socket.
func (s *Socket) Emit(event string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return transport.ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(transport.Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// Disconnect implements transport.Socket.
func (s *Socket) Disconnect() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.logger.Info("websocket disconnected", zap.String("url", s.opts.URL))
	return conn.Close()
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.dropped(conn, err)
			return
		}
		var env transport.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.logger.Debug("skipping malformed frame", zap.Int("bytes", len(data)))
			continue
		}
		s.dispatch(env.Event, env.Data)
	}
}

// dropped handles the end of a read loop. Closes requested through
// Disconnect are silent.
func (s *Socket) dropped(conn *websocket.Conn, err error) {
	s.mu.Lock()
	requested := s.closed || s.conn != conn
	if !requested {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
	if requested {
		return
	}

	info := transport.DisconnectInfo{Reason: "io server disconnect"}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		info.Reason = "transport error"
		info.Error = err.Error()
	}
	s.logger.Warn("websocket dropped", zap.String("reason", info.Reason), zap.Error(err))
	s.dispatch(transport.EventDisconnect, transport.Encode(info))
}

func (s *Socket) dispatch(event string, payload json.RawMessage) {
	s.mu.Lock()
	fns := slices.Clone(s.listeners[event])
	s.mu.Unlock()
	for _, fn := range fns {
		fn(payload)
	}
}

// URL joins socketPath onto serverURL and maps http(s) schemes to ws(s).
func URL(serverURL, socketPath string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", serverURL)
	}
	if socketPath != "" {
		u.Path = path.Join("/", strings.TrimSuffix(u.Path, "/"), socketPath)
	}
	return u.String(), nil
}
