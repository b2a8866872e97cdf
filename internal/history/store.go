package history

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Emitter sends an event to the chat server.
type Emitter interface {
	Emit(event string, payload any) error
}

// Store is the ordered, bounded message log, newest first. Every mutation
// publishes bus.KindMessagesChanged.
type Store struct {
	emitter Emitter
	bus     *bus.Bus
	logger  *zap.Logger
	limit   int
	now     func() time.Time

	mu   sync.RWMutex
	msgs []chat.Message
}

// New creates an empty store capped at chat.MaxMessages.
func New(emitter Emitter, b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		emitter: emitter,
		bus:     b,
		logger:  logger,
		limit:   chat.MaxMessages,
		now:     time.Now,
	}
}

// Ingest turns an inbound payload into a local message and prepends it.
func (s *Store) Ingest(p chat.ServerMessage) chat.Message {
	m := chat.FromServerPayload(p)
	s.Prepend(m)
	return m
}

// Prepend inserts m as the newest message and drops the oldest beyond the cap.
func (s *Store) Prepend(m chat.Message) {
	s.mu.Lock()
	s.msgs = slices.Insert(s.msgs, 0, m)
	if len(s.msgs) > s.limit {
		clear(s.msgs[s.limit:])
		s.msgs = s.msgs[:s.limit]
	}
	n := len(s.msgs)
	s.mu.Unlock()

	s.changed(n)
}

// Restore merges previously persisted history behind the live messages.
// Messages already present by local id are skipped.
func (s *Store) Restore(loaded []chat.Message) {
	s.mu.Lock()
	merged := make([]chat.Message, 0, min(len(s.msgs)+len(loaded), s.limit))
	seen := make(map[string]struct{}, len(s.msgs)+len(loaded))
	for _, m := range slices.Concat(s.msgs, loaded) {
		if len(merged) == s.limit {
			break
		}
		if m.LocalID != "" {
			if _, dup := seen[m.LocalID]; dup {
				continue
			}
			seen[m.LocalID] = struct{}{}
		}
		merged = append(merged, m)
	}
	s.msgs = merged
	n := len(s.msgs)
	s.mu.Unlock()

	s.logger.Info("history restored", zap.Int("loaded", len(loaded)), zap.Int("messages", n))
	s.changed(n)
}

// Messages returns a copy of the log, newest first.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.msgs)
}

// Len returns the number of messages held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// SendText emits a text message to roomName. Blank text is ignored.
func (s *Store) SendText(text, roomName string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.emit(chat.Outgoing{Content: text, RoomName: roomName})
}

// SendGeolocation emits a NEW_GEO message whose content is the JSON-encoded
// position.
func (s *Store) SendGeolocation(pos chat.Position, roomName string) error {
	content, err := chat.EncodeGeo(pos, s.now())
	if err != nil {
		return fmt.Errorf("encode geolocation: %w", err)
	}
	return s.emit(chat.Outgoing{Content: content, RoomName: roomName, Category: chat.CategoryGeo})
}

// SendImage emits a NEW_IMAGE message referencing a stored image id.
func (s *Store) SendImage(imageID, roomName string) error {
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return nil
	}
	return s.emit(chat.Outgoing{Content: imageID, RoomName: roomName, Category: chat.CategoryImage})
}

func (s *Store) emit(out chat.Outgoing) error {
	if err := s.emitter.Emit(transport.EventMessage, out); err != nil {
		s.logger.Debug("message dropped", zap.String("room", out.RoomName), zap.Error(err))
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *Store) changed(n int) {
	s.bus.Publish(bus.NewEvent(bus.KindMessagesChanged, n))
}
