package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State is the connectivity of the chat socket.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
)

// validTransitions defines allowed state transitions. There is no
// automatic retry, so nothing leads back to Connecting except an
// explicit connect.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Disconnected},
	Connected:    {Disconnected},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state, rejecting transitions not in the table.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	m.publish(from, to)
	return nil
}

// Reset forces the machine to Disconnected from any state. It reports
// whether the state changed.
func (m *Machine) Reset() bool {
	m.mu.Lock()
	from := m.current
	m.current = Disconnected
	m.mu.Unlock()

	if from == Disconnected {
		return false
	}
	m.publish(from, Disconnected)
	return true
}

func (m *Machine) publish(from, to State) {
	m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, StatusChange{From: from, To: to}))
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
