package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
)

// Table lists the states reachable from each state.
type Table[S ~string] map[S][]S

// Machine tracks a state and enforces a transition table.
type Machine[S ~string] struct {
	mu      sync.RWMutex
	current S
	table   Table[S]
	bus     *bus.Bus
	kind    string
	subject string
}

// Change is published on every accepted transition.
type Change[S ~string] struct {
	Subject string
	From    S
	To      S
}

// New creates a machine in state initial. When b is non-nil every accepted
// transition is published as an event of the given kind, tagged with subject.
func New[S ~string](initial S, table Table[S], b *bus.Bus, kind, subject string) *Machine[S] {
	return &Machine[S]{
		current: initial,
		table:   table,
		bus:     b,
		kind:    kind,
		subject: subject,
	}
}

// Current returns the current state.
func (m *Machine[S]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to state to, or returns an error if the table forbids it.
// A transition to the current state is a no-op.
func (m *Machine[S]) Transition(to S) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(m.table[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	m.bus.Emit(m.kind, Change[S]{Subject: m.subject, From: from, To: to})
	return nil
}

// Can reports whether the table allows moving from the current state to to.
func (m *Machine[S]) Can(to S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current == to || slices.Contains(m.table[m.current], to)
}

// Session is the daemon runtime state.
type Session string

const (
	Booting       Session = "BOOTING"
	AuthRequired  Session = "AUTH_REQUIRED"
	Bootstrapping Session = "BOOTSTRAPPING"
	Ready         Session = "READY"
	Degraded      Session = "DEGRADED"
	Error         Session = "ERROR"
)

// SessionTransitions is the daemon lifecycle.
var SessionTransitions = Table[Session]{
	Booting:       {AuthRequired, Bootstrapping, Error},
	AuthRequired:  {Bootstrapping, Error},
	Bootstrapping: {Ready, Degraded, AuthRequired, Error},
	Ready:         {Bootstrapping, Degraded, AuthRequired, Error},
	Degraded:      {Bootstrapping, Ready, AuthRequired, Error},
	Error:         {Booting},
}

// NewSession creates the daemon state machine in Booting.
func NewSession(b *bus.Bus) *Machine[Session] {
	return New(Booting, SessionTransitions, b, bus.SessionStatusChanged, "session")
}

// ConnectionTransitions is the lifecycle of one conversation stream.
// Any state may fall back to Disconnected on close.
var ConnectionTransitions = Table[chat.ConnectionState]{
	chat.Disconnected: {chat.Connecting, chat.Reconnecting},
	chat.Connecting:   {chat.Open, chat.Reconnecting, chat.Disconnected},
	chat.Open:         {chat.Disconnected, chat.Reconnecting},
	chat.Reconnecting: {chat.Connecting, chat.Disconnected},
}

// NewConnection creates a stream state machine in Disconnected.
func NewConnection(b *bus.Bus, conversation chat.ConversationID) *Machine[chat.ConnectionState] {
	return New(chat.Disconnected, ConnectionTransitions, b, bus.ConversationConnection, string(conversation))
}

// View is the state of the conversation selector.
type View string

const (
	Idle                 View = "IDLE"
	ConversationSelected View = "CONVERSATION_SELECTED"
	ConnectionOpening    View = "CONNECTION_OPENING"
	ConnectionOpen       View = "CONNECTION_OPEN"
	ConnectionClosing    View = "CONNECTION_CLOSING"
)

// ViewTransitions is the selector lifecycle. Switching conversations goes
// through ConnectionClosing before the next ConversationSelected.
var ViewTransitions = Table[View]{
	Idle:                 {ConversationSelected},
	ConversationSelected: {ConnectionOpening, ConnectionClosing, Idle},
	ConnectionOpening:    {ConnectionOpen, ConnectionClosing},
	ConnectionOpen:       {ConnectionOpening, ConnectionClosing},
	ConnectionClosing:    {Idle, ConversationSelected},
}

// NewView creates a selector state machine in Idle.
func NewView(b *bus.Bus) *Machine[View] {
	return New(Idle, ViewTransitions, b, bus.ConversationView, "selector")
}
