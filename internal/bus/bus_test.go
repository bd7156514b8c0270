package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	b.Publish(Event{Kind: SessionStatusChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != SessionStatusChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, SessionStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Emit(ConversationSelected, nil)
	b.Emit(MessageSendFailed, SendFailure{ConversationID: "dm:3", ClientID: "local-1"})

	select {
	case evt := <-ch:
		if evt.Kind != MessageSendFailed {
			t.Errorf("got kind %q, want %s", evt.Kind, MessageSendFailed)
		}
		if f, ok := evt.Payload.(SendFailure); !ok || f.ClientID != "local-1" {
			t.Errorf("payload = %#v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()
	unsub()

	b.Emit(SessionStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Emit(MessageAppended, "one")
	b.Emit(MessageAppended, "two")

	evt := <-ch
	if evt.Payload != "one" {
		t.Errorf("got %v, want one", evt.Payload)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestPublishStampsTime(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	defer unsub()

	b.Publish(Event{Kind: MessageMalformed})
	if evt := <-ch; evt.Timestamp.IsZero() {
		t.Error("Publish left a zero timestamp")
	}
}

func TestNilBusEmit(t *testing.T) {
	var b *Bus
	b.Emit(MessageAppended, nil)
}
