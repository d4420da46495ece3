package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmarins/livewire/internal/bus"
)

// State is a push-channel connection state.
type State string

const (
	Idle         State = "IDLE"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Paused       State = "PAUSED"
	Reconnecting State = "RECONNECTING"
	Closed       State = "CLOSED"
)

// validTransitions defines the allowed connection state changes.
var validTransitions = map[State][]State{
	Idle:         {Connecting, Closed},
	Connecting:   {Connected, Idle, Closed},
	Connected:    {Paused, Reconnecting, Closed},
	Paused:       {Connected, Closed},
	Reconnecting: {Connecting, Connected, Closed},
	Closed:       {Idle},
}

// Machine tracks and enforces the connection state of one push channel.
// Transitions are published on the bus under "conn.<family>.".
type Machine struct {
	mu      sync.RWMutex
	family  string
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in Idle state for the given screen
// family ("chat", "feed").
func NewMachine(family string, b *bus.Bus) *Machine {
	return &Machine{
		family:  family,
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// IsConnected reports whether event delivery is possible right now.
func (m *Machine) IsConnected() bool {
	return m.Current() == Connected
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed from the current state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "conn." + m.family + ".status_changed",
			Timestamp: time.Now(),
			Payload:   Change{From: from, To: to},
		})
	}
	return nil
}

// Change is the payload for connection status events.
type Change struct {
	From State
	To   State
}
