// Package client composes the connection, room, history and persistence
// components into the single chat client the daemon exposes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/conn"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/persist"
	"github.com/matheus3301/chatsync/internal/room"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// ErrNoImageStore is returned by SendImage when no remote API is configured.
var ErrNoImageStore = errors.New("client: image upload not configured")

// ImageSaver uploads image data to the backend.
type ImageSaver interface {
	SaveImage(ctx context.Context, id, data string) error
}

// State is a read-only snapshot of the chat client.
type State struct {
	Connected  bool
	Connecting bool
	Error      string
	RoomName   string
	Pseudo     string
	Messages   []chat.Message
	Clients    map[string]any
}

// Options configures a Client.
type Options struct {
	Factory      transport.Factory
	DefaultRoom  string
	Pseudo       string
	KV           persist.KV
	Images       ImageSaver
	PersistDelay time.Duration
	Bus          *bus.Bus
	Logger       *zap.Logger
}

// Client is the chat facade. All methods are safe for concurrent use.
type Client struct {
	bus    *bus.Bus
	logger *zap.Logger
	images ImageSaver

	conn    *conn.Manager
	room    *room.State
	history *history.Store
	adapter *persist.Adapter
	writer  *persist.Writer

	loadOnce sync.Once
}

// New wires a client. No socket is created until Connect.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := opts.Bus
	if b == nil {
		b = bus.New()
	}

	c := &Client{
		bus:    b,
		logger: logger,
		images: opts.Images,
		conn:   conn.New(opts.Factory, status.NewMachine(b), b, logger.Named("conn")),
		room:   room.New(opts.DefaultRoom, opts.Pseudo, b),
	}
	c.history = history.New(c.conn, b, logger.Named("history"))
	c.adapter = persist.NewAdapter(opts.KV, logger.Named("persist"))
	c.writer = persist.NewWriter(c.adapter, b, c.history.Messages, opts.PersistDelay, logger.Named("persist"))

	c.conn.Handle(transport.EventJoinedRoom, c.onJoined)
	c.conn.Handle(transport.EventPeerLeft, c.onPeerLeft)
	c.conn.Handle(transport.EventMessage, c.onMessage)
	c.conn.OnConnect(c.rejoin)
	return c
}

// Bus returns the bus carrying the client's change events.
func (c *Client) Bus() *bus.Bus { return c.bus }

// Start begins persisting history changes.
func (c *Client) Start() {
	c.writer.Start()
}

// LoadHistory restores the persisted history once. Later calls do nothing.
// History writes are enabled only after it ran.
func (c *Client) LoadHistory() {
	c.loadOnce.Do(func() {
		loaded := c.adapter.Load()
		c.history.Restore(loaded)
		c.writer.MarkLoaded()
		c.writer.Trigger()
	})
}

// Connect opens the chat connection unless one is connecting or connected.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// JoinRoom switches to roomName. The room is recorded immediately; the
// request itself is dropped with transport.ErrNotConnected when offline and
// replayed on the next connect.
func (c *Client) JoinRoom(roomName, pseudo string) error {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return errors.New("join room: room name is required")
	}
	req := c.room.Request(roomName, pseudo)
	if err := c.conn.Emit(transport.EventJoinRoom, req); err != nil {
		return fmt.Errorf("join room %s: %w", roomName, err)
	}
	c.logger.Info("join requested", zap.String("room", roomName), zap.String("pseudo", pseudo))
	return nil
}

// SendMessage sends text to the current room. Blank text is ignored.
func (c *Client) SendMessage(text string) error {
	return c.history.SendText(text, c.room.RoomName())
}

// SendGeolocation sends pos to the current room as a NEW_GEO message.
func (c *Client) SendGeolocation(pos chat.Position) error {
	return c.history.SendGeolocation(pos, c.room.RoomName())
}

// SendImage uploads data under id and then announces the image to the room.
func (c *Client) SendImage(ctx context.Context, id, data string) error {
	if c.images == nil {
		return ErrNoImageStore
	}
	if err := c.images.SaveImage(ctx, id, data); err != nil {
		return err
	}
	return c.history.SendImage(id, c.room.RoomName())
}

// Disconnect closes the connection. State reports disconnected on return.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Close disconnects and writes any pending history.
func (c *Client) Close() {
	c.conn.Disconnect()
	c.writer.Flush()
	c.writer.Stop()
}

// State returns a snapshot. Messages and Clients are copies.
func (c *Client) State() State {
	st := c.conn.Status()
	return State{
		Connected:  st.Connected,
		Connecting: st.Connecting,
		Error:      st.Error,
		RoomName:   c.room.RoomName(),
		Pseudo:     c.room.Pseudo(),
		Messages:   c.history.Messages(),
		Clients:    c.room.Clients(),
	}
}

func (c *Client) rejoin() {
	req := c.room.Rejoin()
	if req.RoomName == "" {
		return
	}
	if err := c.conn.Emit(transport.EventJoinRoom, req); err != nil {
		c.logger.Warn("rejoin failed", zap.String("room", req.RoomName), zap.Error(err))
		return
	}
	c.logger.Info("rejoined room", zap.String("room", req.RoomName))
}

func (c *Client) onJoined(payload json.RawMessage) {
	var ack chat.RoomJoined
	if err := json.Unmarshal(payload, &ack); err != nil {
		c.logger.Warn("bad room ack", zap.Error(err))
		return
	}
	c.room.Joined(ack)
}

func (c *Client) onPeerLeft(payload json.RawMessage) {
	var p chat.PeerLeft
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("bad peer-left payload", zap.Error(err))
		return
	}
	c.history.Prepend(c.room.PeerLeft(p))
}

func (c *Client) onMessage(payload json.RawMessage) {
	var p chat.ServerMessage
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("bad chat message", zap.Error(err))
		return
	}
	c.history.Ingest(p)
}
