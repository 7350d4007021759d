package status

import (
	"fmt"
	"slices"
	"sync"
)

// State represents a transport connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. Error is a transient
// state reached on handshake failure; it always falls back to Disconnected.
// There is no retry edge: reconnect policy belongs to the caller.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, Error, Disconnected},
	Connected:    {Disconnected},
	Error:        {Disconnected},
}

// Change is the payload handed to transition observers.
type Change struct {
	From State
	To   State
}

// Machine tracks and enforces connection state transitions. Transitions are
// driven by transport callbacks only, never set directly by UI code.
type Machine struct {
	mu      sync.RWMutex
	current State
	notify  func(Change)
}

// NewMachine creates a machine starting in Disconnected. notify, if non-nil,
// is invoked after every successful transition.
func NewMachine(notify func(Change)) *Machine {
	return &Machine{
		current: Disconnected,
		notify:  notify,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed; the state is left unchanged in that case.
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
	notify := m.notify
	m.mu.Unlock()

	if notify != nil {
		notify(Change{From: from, To: to})
	}
	return nil
}
