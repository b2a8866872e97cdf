package bus

import "time"

// Event kinds published by the chat client. Subscribers filter by prefix,
// so "chat." receives every chat event and "status." every connection change.
const (
	KindMessagesChanged = "chat.messages_changed"
	KindRoomChanged     = "chat.room_changed"
	KindClientsChanged  = "chat.clients_changed"
	KindStatusChanged   = "status.changed"
	KindError           = "status.error"
)

// Event represents a change notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
