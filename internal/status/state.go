// Package status tracks the daemon's runtime state.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/doska/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting    State = "BOOTING"
	Connecting State = "CONNECTING"
	Polling    State = "POLLING"
	Degraded   State = "DEGRADED"
	Stopping   State = "STOPPING"
	Error      State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:    {Connecting, Stopping, Error},
	Connecting: {Polling, Degraded, Stopping, Error},
	Polling:    {Degraded, Stopping, Error},
	Degraded:   {Polling, Connecting, Stopping, Error},
	Stopping:   {},
	Error:      {Booting, Stopping},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

// Ensure moves to the given state unless the machine is already there.
func (m *Machine) Ensure(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == to {
		return nil
	}
	return m.transitionLocked(to)
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
