// Package persist saves and restores the chat history through a key/value
// store. Loading never fails and saving never surfaces an error.
package persist

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Key holds the history. The suffix is bumped when the record layout changes.
const Key = "chat-history:v1"

// KV is the subset of store.KV the adapter needs.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte) error
}

// record is the stored form of a chat.Message.
type record struct {
	Content    string        `json:"content"`
	DateEmis   string        `json:"dateEmis"`
	RoomName   string        `json:"roomName"`
	Category   chat.Category `json:"category"`
	ServerID   string        `json:"serverId"`
	Author     string        `json:"author,omitempty"`
	LocalID    string        `json:"localId"`
	ReceivedAt string        `json:"receivedAt"`
}

// Adapter reads and writes the history under Key.
type Adapter struct {
	kv     KV
	logger *zap.Logger
	limit  int
}

// NewAdapter creates an adapter over kv. A nil kv behaves as an empty,
// write-discarding store.
func NewAdapter(kv KV, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{kv: kv, logger: logger, limit: chat.MaxMessages}
}

// Load returns the stored history, newest first. Any failure yields an
// empty slice.
func (a *Adapter) Load() []chat.Message {
	out := []chat.Message{}
	if a.kv == nil {
		return out
	}
	data, err := a.kv.Get(Key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("history load failed", zap.Error(err))
		}
		return out
	}
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		a.logger.Warn("stored history is corrupt, ignoring", zap.Error(err))
		return out
	}
	for _, r := range recs {
		out = append(out, r.message())
	}
	return out
}

// Save writes at most the first limit messages. Errors are logged and dropped.
func (a *Adapter) Save(msgs []chat.Message) {
	if a.kv == nil {
		return
	}
	msgs = msgs[:min(len(msgs), a.limit)]
	recs := make([]record, len(msgs))
	for i, m := range msgs {
		recs[i] = toRecord(m)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		a.logger.Warn("history encode failed", zap.Error(err))
		return
	}
	if err := a.kv.Set(Key, data); err != nil {
		a.logger.Warn("history save failed", zap.Int("messages", len(recs)), zap.Error(err))
		return
	}
	a.logger.Debug("history saved", zap.Int("messages", len(recs)))
}

func toRecord(m chat.Message) record {
	r := record{
		Content:  m.Content,
		DateEmis: m.DateEmis,
		RoomName: m.RoomName,
		Category: m.Category,
		ServerID: m.ServerID,
		Author:   m.Author,
		LocalID:  m.LocalID,
	}
	if !m.ReceivedAt.IsZero() {
		r.ReceivedAt = m.ReceivedAt.Format(time.RFC3339Nano)
	}
	return r
}

func (r record) message() chat.Message {
	m := chat.Message{
		Content:  r.Content,
		DateEmis: r.DateEmis,
		RoomName: r.RoomName,
		Category: r.Category,
		ServerID: r.ServerID,
		Author:   r.Author,
		LocalID:  r.LocalID,
	}
	if t, err := time.Parse(time.RFC3339Nano, r.ReceivedAt); err == nil {
		m.ReceivedAt = t
	}
	return m
}
