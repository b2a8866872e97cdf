package room

import (
	"maps"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
)

// State tracks room membership in two phases: the desired room set by the
// caller before any acknowledgement, and the confirmed room reported by the
// server. An acknowledgement overwrites the desired room; an unanswered
// request is never rolled back.
type State struct {
	bus *bus.Bus
	now func() time.Time

	mu        sync.Mutex
	desired   string
	confirmed string
	pseudo    string
	clients   map[string]any
}

// New creates a room state holding defaultRoom as the desired room.
func New(defaultRoom, defaultPseudo string, b *bus.Bus) *State {
	return &State{
		bus:     b,
		now:     time.Now,
		desired: defaultRoom,
		pseudo:  defaultPseudo,
		clients: map[string]any{},
	}
}

// Request records an optimistic room change and returns the join payload.
func (s *State) Request(roomName, pseudo string) chat.JoinRequest {
	s.mu.Lock()
	s.desired = roomName
	s.pseudo = pseudo
	s.mu.Unlock()

	s.bus.Publish(bus.NewEvent(bus.KindRoomChanged, roomName))
	return chat.JoinRequest{RoomName: roomName, Pseudo: pseudo}
}

// Rejoin returns the join payload for the last desired room and pseudo.
func (s *State) Rejoin() chat.JoinRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chat.JoinRequest{RoomName: s.desired, Pseudo: s.pseudo}
}

// Joined applies a chat-joined-room acknowledgement. Clients are replaced
// wholesale; an empty room name keeps the current one.
func (s *State) Joined(ack chat.RoomJoined) {
	clients := maps.Clone(ack.Clients)
	if clients == nil {
		clients = map[string]any{}
	}

	s.mu.Lock()
	s.clients = clients
	if ack.RoomName != "" {
		s.desired = ack.RoomName
		s.confirmed = ack.RoomName
	} else {
		s.confirmed = s.desired
	}
	room := s.desired
	s.mu.Unlock()

	s.bus.Publish(bus.NewEvent(bus.KindRoomChanged, room))
	s.bus.Publish(bus.NewEvent(bus.KindClientsChanged, len(clients)))
}

// PeerLeft removes the departed participant, if present, and returns the
// INFO message announcing the departure.
func (s *State) PeerLeft(p chat.PeerLeft) chat.Message {
	s.mu.Lock()
	_, present := s.clients[p.ID]
	if p.ID != "" && present {
		next := maps.Clone(s.clients)
		delete(next, p.ID)
		s.clients = next
	}
	n := len(s.clients)
	s.mu.Unlock()

	if present {
		s.bus.Publish(bus.NewEvent(bus.KindClientsChanged, n))
	}
	return chat.PeerLeftMessage(p, s.now())
}

// RoomName returns the desired room.
func (s *State) RoomName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired
}

// Confirmed returns the last room acknowledged by the server, or "".
func (s *State) Confirmed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// Pseudo returns the pseudo used for the last join.
func (s *State) Pseudo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pseudo
}

// Clients returns a copy of the participant map.
func (s *State) Clients() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.clients)
}
