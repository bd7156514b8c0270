package status

import (
	"testing"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
)

func TestInitialStates(t *testing.T) {
	if s := NewSession(nil).Current(); s != Booting {
		t.Errorf("session initial = %s, want BOOTING", s)
	}
	if s := NewConnection(nil, chat.Direct("3")).Current(); s != chat.Disconnected {
		t.Errorf("connection initial = %s, want DISCONNECTED", s)
	}
	if s := NewView(nil).Current(); s != Idle {
		t.Errorf("view initial = %s, want IDLE", s)
	}
}

func TestSessionTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Session
	}{
		{"first run", []Session{AuthRequired, Bootstrapping, Ready}},
		{"returning user", []Session{Bootstrapping, Ready}},
		{"directory unreachable", []Session{Bootstrapping, Degraded, Bootstrapping, Ready}},
		{"token revoked", []Session{Bootstrapping, Ready, AuthRequired}},
		{"fatal", []Session{Error, Booting}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSession(nil)
			for _, s := range tt.path {
				if err := m.Transition(s); err != nil {
					t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
				}
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewSession(nil)
	if err := m.Transition(Ready); err == nil {
		t.Error("Transition(BOOTING -> READY) should fail")
	}
	if m.Current() != Booting {
		t.Errorf("state = %s, want BOOTING (should not have changed)", m.Current())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewSession(b)
	if err := m.Transition(Booting); err != nil {
		t.Fatal(err)
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	default:
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conversation.", 10)
	defer unsub()

	m := NewConnection(b, chat.Direct("3"))
	if err := m.Transition(chat.Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.ConversationConnection {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.ConversationConnection)
	}
	change, ok := evt.Payload.(Change[chat.ConnectionState])
	if !ok {
		t.Fatalf("payload type = %T", evt.Payload)
	}
	if change.Subject != "dm:3" || change.From != chat.Disconnected || change.To != chat.Connecting {
		t.Errorf("change = %+v", change)
	}
}

// A dropped stream reports Disconnected before the backoff loop starts.
func TestConnectionReconnectCycle(t *testing.T) {
	m := NewConnection(nil, chat.Direct("3"))
	steps := []chat.ConnectionState{
		chat.Connecting, chat.Open,
		chat.Disconnected, chat.Reconnecting, chat.Connecting,
		chat.Reconnecting, chat.Connecting, chat.Open,
	}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Can(chat.Connecting) {
		t.Error("OPEN -> CONNECTING must go through a disconnect")
	}
}

func TestViewSwitchConversation(t *testing.T) {
	m := NewView(nil)
	steps := []View{
		ConversationSelected, ConnectionOpening, ConnectionOpen,
		ConnectionClosing, ConversationSelected, ConnectionOpening, ConnectionOpen,
		ConnectionClosing, Idle,
	}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if err := m.Transition(ConnectionOpen); err == nil {
		t.Error("IDLE -> CONNECTION_OPEN should fail")
	}
}
