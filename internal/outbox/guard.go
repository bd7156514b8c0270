// Package outbox stamps outbound messages with provisional ids and matches
// server echoes back to them.
package outbox

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"go.uber.org/zap"
)

// MessageStore is the part of the conversation store the guard mutates.
type MessageStore interface {
	AppendMessage(id chat.ConversationID, m chat.Message) bool
	Reconcile(id chat.ConversationID, provisionalID string, confirmed chat.Message) bool
	MarkFailed(id chat.ConversationID, messageID string) bool
	Discard(id chat.ConversationID, messageID string) (chat.Message, error)
}

// Options tune echo matching and delivery expiry.
type Options struct {
	// DeliveryTimeout is how long a message may stay pending before it is
	// marked failed. Zero disables expiry.
	DeliveryTimeout time.Duration
	// EchoTolerance bounds the clock skew accepted when an echo carries no
	// client id and is matched on sender, body and timestamp.
	EchoTolerance time.Duration
	Now           func() time.Time
}

// DefaultOptions returns the guard defaults.
func DefaultOptions() Options {
	return Options{
		DeliveryTimeout: 15 * time.Second,
		EchoTolerance:   10 * time.Second,
		Now:             time.Now,
	}
}

type inflight struct {
	seq      uint64
	conv     chat.ConversationID
	msg      chat.Message
	timer    *time.Timer
	failed   bool
	retrying bool
}

// Guard tracks messages between the optimistic insert and the server echo.
// Failed messages stay matchable so a late echo still confirms them.
type Guard struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string]*inflight
	closed  bool

	store  MessageStore
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options
}

// NewGuard creates a guard writing into st.
func NewGuard(st MessageStore, b *bus.Bus, logger *zap.Logger, opts Options) *Guard {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Guard{
		entries: make(map[string]*inflight),
		store:   st,
		bus:     b,
		logger:  logger,
		opts:    opts,
	}
}

// PrepareOutbound creates a pending message with a fresh provisional id,
// inserts it into the store and arms the delivery timer. Provisional ids
// are local-1, local-2 and so on.
func (g *Guard) PrepareOutbound(conv chat.ConversationID, senderID, body string) (string, chat.Message) {
	g.mu.Lock()
	g.seq++
	id := fmt.Sprintf("%s%d", chat.ProvisionalPrefix, g.seq)
	m := chat.Message{
		ID:        id,
		SenderID:  senderID,
		Body:      body,
		Timestamp: g.opts.Now().UTC(),
		State:     chat.Pending,
		Outgoing:  true,
	}
	e := &inflight{seq: g.seq, conv: conv, msg: m}
	g.entries[id] = e
	if g.opts.DeliveryTimeout > 0 && !g.closed {
		e.timer = time.AfterFunc(g.opts.DeliveryTimeout, func() { g.expire(id) })
	}
	g.mu.Unlock()

	g.store.AppendMessage(conv, m)
	g.logger.Debug("message prepared",
		zap.String("conversation", string(conv)),
		zap.String("client_msg_id", id))
	return id, m
}

// OnEcho handles a confirmed message sent by the local user. It is matched
// to an in-flight message by echoed client id, or failing that by sender,
// body and a timestamp within the echo tolerance, oldest first. A match is
// reconciled in place; anything else is appended as a new message. It
// reports whether a provisional message was matched.
func (g *Guard) OnEcho(conv chat.ConversationID, confirmed chat.Message) bool {
	g.mu.Lock()
	e := g.matchLocked(conv, confirmed)
	if e != nil {
		delete(g.entries, e.msg.ID)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	g.mu.Unlock()

	if e == nil {
		g.store.AppendMessage(conv, confirmed)
		return false
	}
	g.store.Reconcile(conv, e.msg.ID, confirmed)
	g.logger.Debug("message confirmed",
		zap.String("conversation", string(conv)),
		zap.String("client_msg_id", e.msg.ID),
		zap.String("server_msg_id", confirmed.ID),
		zap.Bool("was_failed", e.failed))
	return true
}

// Claim removes and returns the in-flight message with the given client
// id, without touching the store. History merges use it to reconcile
// explicit echoes.
func (g *Guard) Claim(conv chat.ConversationID, clientID string) (chat.Message, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[clientID]
	if !ok || e.conv != conv {
		return chat.Message{}, false
	}
	delete(g.entries, clientID)
	if e.timer != nil {
		e.timer.Stop()
	}
	return e.msg, true
}

func (g *Guard) matchLocked(conv chat.ConversationID, confirmed chat.Message) *inflight {
	if confirmed.ClientID != "" {
		if e, ok := g.entries[confirmed.ClientID]; ok && e.conv == conv {
			return e
		}
	}
	var candidates []*inflight
	for _, e := range g.entries {
		if e.conv != conv || e.msg.SenderID != confirmed.SenderID || e.msg.Body != confirmed.Body {
			continue
		}
		if skew := confirmed.Timestamp.Sub(e.msg.Timestamp).Abs(); skew > g.opts.EchoTolerance {
			continue
		}
		candidates = append(candidates, e)
	}
	if len(candidates) == 0 {
		return nil
	}
	return slices.MinFunc(candidates, func(a, b *inflight) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
}

// MarkFailed fails a pending message immediately, typically because the
// transport refused the write. Unknown or already failed ids are ignored.
func (g *Guard) MarkFailed(conv chat.ConversationID, provisionalID string, cause error) {
	g.fail(conv, provisionalID, cause)
}

func (g *Guard) expire(provisionalID string) {
	g.mu.Lock()
	e, ok := g.entries[provisionalID]
	g.mu.Unlock()
	if !ok {
		return
	}
	g.fail(e.conv, provisionalID, chat.ErrDeliveryTimeout)
}

func (g *Guard) fail(conv chat.ConversationID, provisionalID string, cause error) {
	g.mu.Lock()
	e, ok := g.entries[provisionalID]
	if !ok || e.conv != conv || e.failed {
		g.mu.Unlock()
		return
	}
	e.failed = true
	if e.timer != nil {
		e.timer.Stop()
	}
	g.mu.Unlock()

	if !g.store.MarkFailed(conv, provisionalID) {
		return
	}
	g.logger.Warn("message not delivered",
		zap.String("conversation", string(conv)),
		zap.String("client_msg_id", provisionalID),
		zap.Error(cause))
	g.bus.Emit(bus.MessageSendFailed, bus.SendFailure{
		ConversationID: string(conv),
		ClientID:       provisionalID,
		Err:            cause.Error(),
	})
}

// Retry removes a failed message and sends its body again under a new
// provisional id. Only failed messages can be retried. If an echo confirms
// the message while the failed copy is being removed, nothing is resent
// and ErrAlreadyDelivered is returned.
func (g *Guard) Retry(conv chat.ConversationID, provisionalID string) (string, chat.Message, error) {
	g.mu.Lock()
	e, ok := g.entries[provisionalID]
	if !ok || e.conv != conv || !e.failed || e.retrying {
		g.mu.Unlock()
		return "", chat.Message{}, fmt.Errorf("retry %s: %w", provisionalID, chat.ErrUnknownMessage)
	}
	// The entry stays matchable until the failed copy is gone from the store.
	e.retrying = true
	g.mu.Unlock()

	old, discardErr := g.store.Discard(conv, provisionalID)

	g.mu.Lock()
	claimed := g.entries[provisionalID] != e
	if !claimed {
		delete(g.entries, provisionalID)
	}
	g.mu.Unlock()

	if claimed {
		g.logger.Debug("retry skipped, echo arrived",
			zap.String("conversation", string(conv)),
			zap.String("client_msg_id", provisionalID))
		return "", chat.Message{}, fmt.Errorf("retry %s: %w", provisionalID, chat.ErrAlreadyDelivered)
	}
	if discardErr != nil {
		return "", chat.Message{}, fmt.Errorf("retry %s: %w", provisionalID, discardErr)
	}
	id, m := g.PrepareOutbound(conv, old.SenderID, old.Body)
	return id, m, nil
}

// InFlight returns the number of messages awaiting an echo, failed ones included.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Stop cancels every delivery timer.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for _, e := range g.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}
