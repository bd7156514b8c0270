package outbox

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/store"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testGuard(t *testing.T, timeout time.Duration) (*Guard, *store.Store, *bus.Bus, *fakeClock) {
	t.Helper()
	b := bus.New()
	st := store.New(b, zap.NewNop())
	st.SetSelf("7")
	clock := &fakeClock{now: t0}
	g := NewGuard(st, b, zap.NewNop(), Options{
		DeliveryTimeout: timeout,
		EchoTolerance:   10 * time.Second,
		Now:             clock.Now,
	})
	t.Cleanup(g.Stop)
	return g, st, b, clock
}

func TestPrepareOutboundInsertsPending(t *testing.T) {
	g, st, _, _ := testGuard(t, 0)
	conv := chat.Direct("3")

	id, m := g.PrepareOutbound(conv, "7", "Need backup")
	if id != "local-1" {
		t.Errorf("first provisional id = %q, want local-1", id)
	}
	if m.State != chat.Pending || !m.Outgoing || !m.Timestamp.Equal(t0) {
		t.Errorf("message = %+v", m)
	}
	id2, _ := g.PrepareOutbound(conv, "7", "again")
	if id2 != "local-2" {
		t.Errorf("second provisional id = %q, want local-2", id2)
	}

	got := st.GetOrdered(conv)
	if len(got) != 2 || got[0].ID != "local-1" || got[0].State != chat.Pending {
		t.Errorf("store = %+v", got)
	}
}

// Sending "Need backup" then receiving the echo with id 55 leaves exactly
// one confirmed message.
func TestEchoReconcilesWithoutClientID(t *testing.T) {
	g, st, _, clock := testGuard(t, 0)
	conv := chat.Direct("3")

	g.PrepareOutbound(conv, "7", "Need backup")
	clock.Advance(time.Second)

	echo := chat.Message{ID: "55", SenderID: "7", Body: "Need backup", Timestamp: t0.Add(2 * time.Second)}
	if !g.OnEcho(conv, echo) {
		t.Fatal("echo was not matched")
	}

	got := st.GetOrdered(conv)
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1", len(got))
	}
	if got[0].ID != "55" || got[0].State != chat.Confirmed || got[0].ClientID != "local-1" {
		t.Errorf("message = %+v", got[0])
	}
	if g.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", g.InFlight())
	}
}

func TestEchoPrefersClientID(t *testing.T) {
	g, st, _, _ := testGuard(t, 0)
	conv := chat.Direct("3")

	g.PrepareOutbound(conv, "7", "ok")
	g.PrepareOutbound(conv, "7", "ok")

	g.OnEcho(conv, chat.Message{ID: "56", ClientID: "local-2", SenderID: "7", Body: "ok", Timestamp: t0})

	got := st.GetOrdered(conv)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	byID := map[string]chat.Message{}
	for _, m := range got {
		byID[m.ID] = m
	}
	if byID["local-1"].State != chat.Pending {
		t.Error("local-1 should still be pending")
	}
	if byID["56"].ClientID != "local-2" {
		t.Errorf("56 reconciled from %q, want local-2", byID["56"].ClientID)
	}
}

func TestEchoMatchesOldestFirst(t *testing.T) {
	g, st, _, clock := testGuard(t, 0)
	conv := chat.Direct("3")

	g.PrepareOutbound(conv, "7", "copy")
	clock.Advance(time.Second)
	g.PrepareOutbound(conv, "7", "copy")

	g.OnEcho(conv, chat.Message{ID: "60", SenderID: "7", Body: "copy", Timestamp: t0.Add(time.Second)})

	if _, ok := st.Message(conv, "local-1"); ok {
		t.Error("local-1 should have been reconciled first")
	}
	if m, ok := st.Message(conv, "local-2"); !ok || m.State != chat.Pending {
		t.Error("local-2 should still be pending")
	}
}

func TestEchoOutsideToleranceAppends(t *testing.T) {
	g, st, _, _ := testGuard(t, 0)
	conv := chat.Direct("3")

	g.PrepareOutbound(conv, "7", "hello")
	matched := g.OnEcho(conv, chat.Message{ID: "70", SenderID: "7", Body: "hello", Timestamp: t0.Add(time.Minute)})
	if matched {
		t.Error("echo a minute later should not match")
	}
	if n := len(st.GetOrdered(conv)); n != 2 {
		t.Errorf("got %d messages, want 2", n)
	}
}

func TestEchoFromOtherConversationDoesNotMatch(t *testing.T) {
	g, _, _, _ := testGuard(t, 0)
	g.PrepareOutbound(chat.Direct("3"), "7", "hello")
	if g.OnEcho(chat.Direct("4"), chat.Message{ID: "70", ClientID: "local-1", SenderID: "7", Body: "hello", Timestamp: t0}) {
		t.Error("echo matched across conversations")
	}
}

func TestDeliveryTimeoutMarksFailed(t *testing.T) {
	g, st, b, _ := testGuard(t, 50*time.Millisecond)
	ch, unsub := b.Subscribe(bus.MessageSendFailed, 10)
	defer unsub()
	conv := chat.Direct("3")

	id, _ := g.PrepareOutbound(conv, "7", "anyone?")

	select {
	case evt := <-ch:
		f := evt.Payload.(bus.SendFailure)
		if f.ClientID != id || f.ConversationID != "dm:3" {
			t.Errorf("failure = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed event")
	}

	m, ok := st.Message(conv, id)
	if !ok || m.State != chat.Failed {
		t.Errorf("message = %+v, want FAILED", m)
	}
}

func TestLateEchoConfirmsFailed(t *testing.T) {
	g, st, _, _ := testGuard(t, 0)
	conv := chat.Direct("3")

	id, _ := g.PrepareOutbound(conv, "7", "late")
	g.MarkFailed(conv, id, chat.ErrNotConnected)

	if !g.OnEcho(conv, chat.Message{ID: "80", SenderID: "7", Body: "late", Timestamp: t0}) {
		t.Fatal("late echo should still match the failed message")
	}
	got := st.GetOrdered(conv)
	if len(got) != 1 || got[0].ID != "80" || got[0].State != chat.Confirmed {
		t.Errorf("store = %+v", got)
	}
}

func TestRetry(t *testing.T) {
	g, st, _, _ := testGuard(t, 0)
	conv := chat.Direct("3")

	id, _ := g.PrepareOutbound(conv, "7", "resend me")
	if _, _, err := g.Retry(conv, id); !errors.Is(err, chat.ErrUnknownMessage) {
		t.Errorf("Retry of pending message error = %v, want ErrUnknownMessage", err)
	}

	g.MarkFailed(conv, id, chat.ErrNotConnected)
	newID, m, err := g.Retry(conv, id)
	if err != nil {
		t.Fatal(err)
	}
	if newID == id || m.Body != "resend me" || m.State != chat.Pending {
		t.Errorf("retry = %s %+v", newID, m)
	}
	got := st.GetOrdered(conv)
	if len(got) != 1 || got[0].ID != newID {
		t.Errorf("store = %+v", got)
	}
}

// slowDiscardStore runs a hook around Discard, standing in for an echo
// that lands while a retry is removing the failed copy.
type slowDiscardStore struct {
	*store.Store
	before, after func()
}

func (s *slowDiscardStore) Discard(id chat.ConversationID, messageID string) (chat.Message, error) {
	if s.before != nil {
		s.before()
	}
	m, err := s.Store.Discard(id, messageID)
	if s.after != nil {
		s.after()
	}
	return m, err
}

func TestRetryRacingLateEcho(t *testing.T) {
	for _, echoAfterDiscard := range []bool{false, true} {
		name := "echo before discard"
		if echoAfterDiscard {
			name = "echo after discard"
		}
		t.Run(name, func(t *testing.T) {
			b := bus.New()
			st := &slowDiscardStore{Store: store.New(b, zap.NewNop())}
			st.SetSelf("7")
			g := NewGuard(st, b, zap.NewNop(), Options{EchoTolerance: 10 * time.Second, Now: func() time.Time { return t0 }})
			t.Cleanup(g.Stop)
			conv := chat.Direct("3")

			id, _ := g.PrepareOutbound(conv, "7", "once only")
			g.MarkFailed(conv, id, chat.ErrNotConnected)

			echo := func() {
				g.OnEcho(conv, chat.Message{ID: "80", ClientID: id, SenderID: "7", Body: "once only", Timestamp: t0})
			}
			if echoAfterDiscard {
				st.after = echo
			} else {
				st.before = echo
			}

			if _, _, err := g.Retry(conv, id); !errors.Is(err, chat.ErrAlreadyDelivered) {
				t.Fatalf("Retry() error = %v, want ErrAlreadyDelivered", err)
			}
			got := st.GetOrdered(conv)
			if len(got) != 1 || got[0].ID != "80" || got[0].State != chat.Confirmed {
				t.Errorf("store = %+v, want only the confirmed echo", got)
			}
			if n := g.InFlight(); n != 0 {
				t.Errorf("InFlight() = %d, want 0", n)
			}
		})
	}
}

func TestClaim(t *testing.T) {
	g, _, _, _ := testGuard(t, 0)
	conv := chat.Direct("3")
	id, _ := g.PrepareOutbound(conv, "7", "x")

	if _, ok := g.Claim(chat.Direct("4"), id); ok {
		t.Error("Claim matched another conversation")
	}
	m, ok := g.Claim(conv, id)
	if !ok || m.Body != "x" {
		t.Errorf("Claim = %+v, %v", m, ok)
	}
	if _, ok := g.Claim(conv, id); ok {
		t.Error("Claim should remove the entry")
	}
}
