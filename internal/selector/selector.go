// Package selector decides which conversation is active, owns its single
// stream and routes sends through the delivery guard.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/status"
	"github.com/matheus3301/precinct/internal/store"
	"github.com/matheus3301/precinct/internal/transport"
	"github.com/matheus3301/precinct/internal/wire"
	"go.uber.org/zap"
)

// Connection is an open conversation stream.
type Connection interface {
	Send(ctx context.Context, out wire.Outbound) error
	Close() error
	State() chat.ConnectionState
}

// Dialer opens conversation streams.
type Dialer interface {
	Open(ctx context.Context, p transport.Params, h transport.Handler) (Connection, error)
}

// Store is the part of the conversation store the selector uses.
type Store interface {
	SetSelf(userID string)
	SetActive(id chat.ConversationID)
	SetConnectionState(id chat.ConversationID, state chat.ConnectionState, err error)
	GetOrdered(id chat.ConversationID) []chat.Message
	Snapshot(id chat.ConversationID) (store.Update, bool)
	Subscribe(id chat.ConversationID, fn store.Listener) func()
}

// Guard stamps and tracks outbound messages.
type Guard interface {
	PrepareOutbound(id chat.ConversationID, senderID, body string) (string, chat.Message)
	MarkFailed(id chat.ConversationID, provisionalID string, cause error)
	Retry(id chat.ConversationID, provisionalID string) (string, chat.Message, error)
}

// Loader applies stream frames and history.
type Loader interface {
	SetSelf(userID string)
	HandleFrame(id chat.ConversationID, data []byte) error
	OnConnectionOpen(id chat.ConversationID)
	Warm(ctx context.Context, id chat.ConversationID) (int, error)
}

// Identity is the authenticated user the streams are opened for.
type Identity struct {
	UserID string
	Token  string
}

// Selector is safe for concurrent use. It never holds its lock across
// network I/O.
type Selector struct {
	dialer  Dialer
	store   Store
	guard   Guard
	loader  Loader
	bus     *bus.Bus
	logger  *zap.Logger
	baseURL string
	machine *status.Machine[status.View]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	identity Identity
	active   chat.ConversationID
	conn     Connection
	gen      uint64
	watchers map[int]*watcher
	nextW    int
}

// New creates a selector opening streams against streamBaseURL.
func New(streamBaseURL string, d Dialer, st Store, g Guard, l Loader, b *bus.Bus, logger *zap.Logger) *Selector {
	ctx, cancel := context.WithCancel(context.Background())
	return &Selector{
		dialer:   d,
		store:    st,
		guard:    g,
		loader:   l,
		bus:      b,
		logger:   logger,
		baseURL:  streamBaseURL,
		machine:  status.NewView(b),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[int]*watcher),
	}
}

// SetIdentity sets the user and token used for new streams. An already
// open stream keeps the identity it was opened with.
func (s *Selector) SetIdentity(id Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
	s.store.SetSelf(id.UserID)
	s.loader.SetSelf(id.UserID)
}

// Identity returns the current identity.
func (s *Selector) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// State returns the selector state.
func (s *Selector) State() status.View { return s.machine.Current() }

// Active returns the active conversation, if any.
func (s *Selector) Active() (chat.ConversationID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.active != ""
}

// Messages returns the ordered messages of the active conversation.
func (s *Selector) Messages() ([]chat.Message, error) {
	id, ok := s.Active()
	if !ok {
		return nil, chat.ErrNoActiveConversation
	}
	return s.store.GetOrdered(id), nil
}

// Select makes id the active conversation. The previous stream is closed
// before the new one is opened; the previous conversation's messages stay
// in the store. Selecting the conversation that is already live is a no-op.
func (s *Selector) Select(ctx context.Context, id chat.ConversationID) error {
	s.mu.Lock()
	ident := s.identity
	params := transport.Params{BaseURL: s.baseURL, Conversation: id, UserID: ident.UserID, Token: ident.Token}
	if _, err := transport.StreamURL(params); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, err)
	}
	if id == s.active && s.conn != nil && s.conn.State() != chat.Disconnected {
		s.mu.Unlock()
		return nil
	}
	old, oldID := s.conn, s.active
	s.gen++
	gen := s.gen
	if old != nil || s.machine.Current() != status.Idle {
		s.transitionLocked(status.ConnectionClosing)
	}
	s.active, s.conn = id, nil
	s.transitionLocked(status.ConversationSelected)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
		s.store.SetConnectionState(oldID, chat.Disconnected, nil)
	}
	s.store.SetActive(id)
	s.retarget(id)
	s.bus.Emit(bus.ConversationSelected, string(id))
	s.logger.Info("conversation selected", zap.String("conversation", string(id)))

	if n, err := s.loader.Warm(ctx, id); err != nil {
		s.logger.Warn("warm from archive failed", zap.String("conversation", string(id)), zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("warmed from archive", zap.String("conversation", string(id)), zap.Int("messages", n))
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.transitionLocked(status.ConnectionOpening)
	s.mu.Unlock()

	conn, err := s.dialer.Open(s.ctx, params, s.handler(gen, id))
	if err != nil {
		s.store.SetConnectionState(id, chat.Disconnected, err)
		s.mu.Lock()
		if s.gen == gen {
			s.transitionLocked(status.ConnectionClosing)
			s.transitionLocked(status.ConversationSelected)
		}
		s.mu.Unlock()
		return fmt.Errorf("open %s: %w", id, err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Deselect closes the active stream and returns to Idle.
func (s *Selector) Deselect() {
	s.mu.Lock()
	old, oldID := s.conn, s.active
	if oldID == "" {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.transitionLocked(status.ConnectionClosing)
	s.active, s.conn = "", nil
	s.transitionLocked(status.Idle)
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
		s.store.SetConnectionState(oldID, chat.Disconnected, nil)
	}
	s.store.SetActive("")
	s.retarget("")
}

// Send posts body to the active conversation. The message is inserted as
// Pending first; if the stream cannot take it the returned message is
// Failed and the error wraps chat.ErrNotConnected.
func (s *Selector) Send(ctx context.Context, body string) (chat.Message, error) {
	s.mu.Lock()
	id, conn, self := s.active, s.conn, s.identity.UserID
	s.mu.Unlock()
	if id == "" {
		return chat.Message{}, chat.ErrNoActiveConversation
	}
	if self == "" {
		return chat.Message{}, chat.ErrNoIdentity
	}
	pid, m := s.guard.PrepareOutbound(id, self, body)
	return s.deliver(ctx, id, conn, pid, m)
}

// Retry resends a failed message of the active conversation.
func (s *Selector) Retry(ctx context.Context, messageID string) (chat.Message, error) {
	s.mu.Lock()
	id, conn := s.active, s.conn
	s.mu.Unlock()
	if id == "" {
		return chat.Message{}, chat.ErrNoActiveConversation
	}
	pid, m, err := s.guard.Retry(id, messageID)
	if err != nil {
		return chat.Message{}, err
	}
	return s.deliver(ctx, id, conn, pid, m)
}

func (s *Selector) deliver(ctx context.Context, id chat.ConversationID, conn Connection, pid string, m chat.Message) (chat.Message, error) {
	var err error
	if conn == nil {
		err = chat.ErrNotConnected
	} else {
		err = conn.Send(ctx, wire.NewOutbound(m))
	}
	if err != nil {
		if !errors.Is(err, chat.ErrNotConnected) {
			err = fmt.Errorf("%w: %v", chat.ErrNotConnected, err)
		}
		s.guard.MarkFailed(id, pid, err)
		m.State = chat.Failed
		return m, err
	}
	return m, nil
}

// Close closes the active stream and stops all watchers.
func (s *Selector) Close() {
	s.Deselect()
	s.cancel()
}

// handler builds the stream callbacks for one selection. Frames always land
// in their own conversation; view state only follows the current selection.
func (s *Selector) handler(gen uint64, id chat.ConversationID) transport.Handler {
	return transport.Handler{
		OnPayload: func(data []byte) {
			_ = s.loader.HandleFrame(id, data)
		},
		OnStateChange: func(state chat.ConnectionState, err error) {
			s.store.SetConnectionState(id, state, err)
			s.mu.Lock()
			current := s.gen == gen
			if current {
				switch state {
				case chat.Open:
					s.transitionLocked(status.ConnectionOpen)
				case chat.Reconnecting, chat.Connecting:
					s.transitionLocked(status.ConnectionOpening)
				}
			}
			s.mu.Unlock()
			if current && state == chat.Open {
				s.loader.OnConnectionOpen(id)
			}
			if errors.Is(err, chat.ErrConnectionFailed) {
				s.logger.Error("conversation unreachable", zap.String("conversation", string(id)), zap.Error(err))
			}
		},
	}
}

func (s *Selector) transitionLocked(to status.View) {
	if err := s.machine.Transition(to); err != nil {
		s.logger.Error("selector state", zap.Error(err))
	}
}

// TransportDialer adapts a transport.Dialer to Dialer.
func TransportDialer(d *transport.Dialer) Dialer {
	return transportDialer{d}
}

type transportDialer struct {
	d *transport.Dialer
}

func (t transportDialer) Open(ctx context.Context, p transport.Params, h transport.Handler) (Connection, error) {
	c, err := t.d.Open(ctx, p, h)
	if err != nil {
		return nil, err
	}
	return c, nil
}
