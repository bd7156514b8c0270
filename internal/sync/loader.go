// Package sync hydrates conversations from stream frames, REST history and
// the local archive.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/wire"
	"go.uber.org/zap"
)

// MessageStore is the part of the conversation store the loader writes to.
type MessageStore interface {
	AppendMessage(id chat.ConversationID, m chat.Message) bool
	MergeMessages(id chat.ConversationID, msgs []chat.Message) int
	Reconcile(id chat.ConversationID, provisionalID string, confirmed chat.Message) bool
}

// EchoGuard resolves messages the local user sent.
type EchoGuard interface {
	OnEcho(id chat.ConversationID, confirmed chat.Message) bool
	Claim(id chat.ConversationID, clientID string) (chat.Message, bool)
}

// HistoryFetcher loads a conversation's history out of band.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, id chat.ConversationID) ([]chat.Message, error)
}

// Archive serves previously confirmed messages from local storage.
type Archive interface {
	Recent(ctx context.Context, id chat.ConversationID, limit int) ([]chat.Message, error)
}

// Options configure optional history sources.
type Options struct {
	// Fetcher, when set, is queried on every connection open in addition
	// to the history frame the server pushes.
	Fetcher      HistoryFetcher
	FetchTimeout time.Duration
	Archive      Archive
	WarmLimit    int
	Now          func() time.Time
}

// Loader routes decoded frames into the store. It is safe for concurrent use.
type Loader struct {
	store  MessageStore
	guard  EchoGuard
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	mu   gosync.RWMutex
	self string

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewLoader creates a loader.
func NewLoader(st MessageStore, g EchoGuard, b *bus.Bus, logger *zap.Logger, opts Options) *Loader {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.WarmLimit <= 0 {
		opts.WarmLimit = 200
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		store:  st,
		guard:  g,
		bus:    b,
		logger: logger,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetSelf records the current user id. Messages from this sender are
// treated as echoes of local sends.
func (l *Loader) SetSelf(userID string) {
	l.mu.Lock()
	l.self = userID
	l.mu.Unlock()
}

func (l *Loader) selfID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.self
}

// HandleFrame decodes one stream frame for conversation id and applies it.
// Malformed frames are logged and dropped; the error is returned so callers
// can count them.
func (l *Loader) HandleFrame(id chat.ConversationID, data []byte) error {
	p, err := wire.Decode(data, l.opts.Now())
	if err != nil {
		l.logger.Warn("dropping frame",
			zap.String("conversation", string(id)),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		l.bus.Emit(bus.MessageMalformed, string(id))
		return err
	}

	for _, skipErr := range p.Skipped {
		l.logger.Warn("skipping history entry",
			zap.String("conversation", string(id)),
			zap.Error(skipErr))
	}
	if len(p.Skipped) > 0 {
		l.bus.Emit(bus.MessageMalformed, string(id))
	}

	switch p.Kind {
	case wire.KindHistory:
		n := l.MergeHistory(id, p.Messages)
		l.logger.Debug("history frame merged",
			zap.String("conversation", string(id)),
			zap.Int("received", len(p.Messages)),
			zap.Int("added", n))
	case wire.KindMessage:
		m := p.Messages[0]
		self := l.selfID()
		if m.ClientID != "" || (self != "" && m.SenderID == self) {
			l.guard.OnEcho(id, m)
			return nil
		}
		l.store.AppendMessage(id, m)
	}
	return nil
}

// MergeHistory merges a history snapshot. Entries already present are
// skipped, so replays after a reconnect add nothing. Pending messages are
// only reconciled by an explicit client id, never by content. It returns
// the number of entries that changed the store.
func (l *Loader) MergeHistory(id chat.ConversationID, msgs []chat.Message) int {
	rest := make([]chat.Message, 0, len(msgs))
	reconciled := 0
	for _, m := range msgs {
		if m.ClientID != "" {
			if _, ok := l.guard.Claim(id, m.ClientID); ok {
				if l.store.Reconcile(id, m.ClientID, m) {
					reconciled++
				}
				continue
			}
		}
		rest = append(rest, m)
	}
	return reconciled + l.store.MergeMessages(id, rest)
}

// OnConnectionOpen starts an out of band history fetch when a fetcher is
// configured. The result is merged even if the conversation is no longer
// selected by then.
func (l *Loader) OnConnectionOpen(id chat.ConversationID) {
	if l.opts.Fetcher == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(l.ctx, l.opts.FetchTimeout)
		defer cancel()

		msgs, err := l.opts.Fetcher.FetchHistory(ctx, id)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				l.logger.Warn("history fetch failed", zap.String("conversation", string(id)), zap.Error(err))
			}
			return
		}
		n := l.MergeHistory(id, msgs)
		l.logger.Debug("history fetched",
			zap.String("conversation", string(id)),
			zap.Int("received", len(msgs)),
			zap.Int("added", n))
	}()
}

// Warm merges archived messages of a conversation into the store.
func (l *Loader) Warm(ctx context.Context, id chat.ConversationID) (int, error) {
	if l.opts.Archive == nil {
		return 0, nil
	}
	msgs, err := l.opts.Archive.Recent(ctx, id, l.opts.WarmLimit)
	if err != nil {
		return 0, fmt.Errorf("warm %s: %w", id, err)
	}
	return l.store.MergeMessages(id, msgs), nil
}

// Stop cancels in-flight fetches and waits for them to return.
func (l *Loader) Stop() {
	l.cancel()
	l.wg.Wait()
}
