package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxMessages bounds the in-memory and persisted history.
const MaxMessages = 300

// InfoServerID is the serverId stamped on client-synthesized messages.
const InfoServerID = "server"

// Category is the kind of a chat message.
type Category string

const (
	CategoryMessage Category = "MESSAGE"
	// CategoryInfo is synthesized locally and never sent over the wire.
	CategoryInfo  Category = "INFO"
	CategoryImage Category = "NEW_IMAGE"
	CategoryGeo   Category = "NEW_GEO"
)

// ServerMessage is the inbound chat-msg payload.
type ServerMessage struct {
	Content  string   `json:"content"`
	DateEmis string   `json:"dateEmis"`
	RoomName string   `json:"roomName"`
	Category Category `json:"category"`
	ServerID string   `json:"serverId"`
	Pseudo   string   `json:"pseudo,omitempty"`
}

// UnmarshalJSON accepts the backend's legacy "categorie" key.
func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	type plain ServerMessage
	var wire struct {
		plain
		Categorie Category `json:"categorie"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = ServerMessage(wire.plain)
	if m.Category == "" {
		m.Category = wire.Categorie
	}
	return nil
}

// Message is a chat message as held by the client. LocalID and ReceivedAt
// are assigned on receipt and never come from the wire.
type Message struct {
	Content    string    `json:"content"`
	DateEmis   string    `json:"dateEmis"`
	RoomName   string    `json:"roomName"`
	Category   Category  `json:"category"`
	ServerID   string    `json:"serverId"`
	Author     string    `json:"author,omitempty"`
	LocalID    string    `json:"localId"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// FromServerPayload builds a local message from a server payload with a
// fresh local id and the current local time.
func FromServerPayload(p ServerMessage) Message {
	return Message{
		Content:    p.Content,
		DateEmis:   p.DateEmis,
		RoomName:   p.RoomName,
		Category:   p.Category,
		ServerID:   p.ServerID,
		Author:     p.Pseudo,
		LocalID:    NewLocalID(),
		ReceivedAt: time.Now(),
	}
}

// PeerLeft is the chat-disconnected payload.
type PeerLeft struct {
	ID       string `json:"id"`
	Pseudo   string `json:"pseudo"`
	RoomName string `json:"roomName"`
}

// PeerLeftMessage synthesizes the INFO message announcing a departure.
func PeerLeftMessage(p PeerLeft, now time.Time) Message {
	return Message{
		Content:    fmt.Sprintf("%s s'est déconnecté", p.Pseudo),
		DateEmis:   now.UTC().Format(time.RFC3339Nano),
		RoomName:   p.RoomName,
		Category:   CategoryInfo,
		ServerID:   InfoServerID,
		Author:     p.Pseudo,
		LocalID:    NewLocalID(),
		ReceivedAt: now,
	}
}

// RoomJoined is the chat-joined-room acknowledgement.
type RoomJoined struct {
	Clients  map[string]any `json:"clients"`
	RoomName string         `json:"roomName"`
}

// JoinRequest is the chat-join-room payload.
type JoinRequest struct {
	RoomName string `json:"roomName"`
	Pseudo   string `json:"pseudo"`
}

// Outgoing is the chat-msg payload sent to the server.
type Outgoing struct {
	Content  string   `json:"content"`
	RoomName string   `json:"roomName"`
	Category Category `json:"category,omitempty"`
}
