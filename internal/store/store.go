// Package store keeps conversations and their ordered message histories in
// memory. It is the single owner of message state: every other component
// mutates it through the methods below and reads copies.
package store

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"go.uber.org/zap"
)

// Update is delivered to the subscribers of a conversation after each
// mutation. Messages is a fresh ordered snapshot shared by all subscribers
// of the same update and must not be modified.
type Update struct {
	Conversation chat.Conversation
	Revision     uint64
	Messages     []chat.Message
}

// Listener receives updates on the mutating goroutine, outside the store
// lock. Concurrent mutations may deliver updates out of order; Revision
// increases with every mutation of a conversation.
type Listener func(Update)

// MessageEvent is the bus payload for message mutations.
type MessageEvent struct {
	ConversationID chat.ConversationID
	Message        chat.Message
	ReplacedID     string // provisional id replaced by a reconcile
}

// Sink receives every message the store accepts, in batches per
// conversation. Archive is called outside the store lock on the mutating
// goroutine; it must not block and must not drop.
type Sink interface {
	Archive(id chat.ConversationID, msgs []chat.Message)
}

type entry struct {
	meta     chat.Conversation
	messages []chat.Message
	ids      map[string]struct{}
	revision uint64
	subs     map[int]Listener
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[chat.ConversationID]*entry
	self    string
	active  chat.ConversationID
	nextSub int

	sink   Sink
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an empty store.
func New(b *bus.Bus, logger *zap.Logger) *Store {
	return &Store{
		entries: make(map[chat.ConversationID]*entry),
		bus:     b,
		logger:  logger,
	}
}

// SetSelf records the current user id used to flag outgoing messages.
func (s *Store) SetSelf(userID string) {
	s.mu.Lock()
	s.self = userID
	s.mu.Unlock()
}

// SetSink routes accepted messages to sink, normally the archive writer.
// Unlike the bus, a sink sees every message.
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Store) archive(sink Sink, id chat.ConversationID, msgs ...chat.Message) {
	if sink != nil && len(msgs) > 0 {
		sink.Archive(id, msgs)
	}
}

// entryLocked returns the entry for id, creating it if needed.
func (s *Store) entryLocked(id chat.ConversationID) *entry {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{
			meta: chat.Conversation{
				ID:              id,
				ParticipantID:   id.Peer(),
				ConnectionState: chat.Disconnected,
			},
			ids:  make(map[string]struct{}),
			subs: make(map[int]Listener),
		}
		s.entries[id] = e
	}
	return e
}

func (s *Store) stampLocked(m *chat.Message) {
	if m.State == "" {
		m.State = chat.Confirmed
	}
	if s.self != "" && m.SenderID == s.self {
		m.Outgoing = true
	}
}

// UpsertConversation creates a conversation or refreshes its participant
// details. Messages, unread count and connection state are left untouched.
func (s *Store) UpsertConversation(c chat.Conversation) chat.Conversation {
	s.mu.Lock()
	e := s.entryLocked(c.ID)
	if c.ParticipantID != "" {
		e.meta.ParticipantID = c.ParticipantID
	}
	if c.ParticipantName != "" {
		e.meta.ParticipantName = c.ParticipantName
	}
	return s.commitLocked(c.ID, e).Conversation
}

// AppendMessage inserts m at its ordered position. A message whose id is
// already present is ignored and false is returned. Incoming messages for a
// conversation that is not active count as unread.
func (s *Store) AppendMessage(id chat.ConversationID, m chat.Message) bool {
	if m.ID == "" {
		s.logger.Warn("dropping message without id", zap.String("conversation", string(id)))
		return false
	}
	s.mu.Lock()
	e := s.entryLocked(id)
	if _, dup := e.ids[m.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.stampLocked(&m)
	e.insert(m)
	if !m.Outgoing && id != s.active {
		e.meta.Unread++
	}
	sink := s.sink
	s.commitLocked(id, e)
	s.archive(sink, id, m)
	s.bus.Emit(bus.MessageAppended, MessageEvent{ConversationID: id, Message: m})
	return true
}

// MergeMessages appends a batch of history messages in one update, skipping
// ids already present. Unread counters are not touched. It returns the
// number of messages added.
func (s *Store) MergeMessages(id chat.ConversationID, msgs []chat.Message) int {
	s.mu.Lock()
	e := s.entryLocked(id)
	var added []chat.Message
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		if _, dup := e.ids[m.ID]; dup {
			continue
		}
		s.stampLocked(&m)
		e.insert(m)
		added = append(added, m)
	}
	if len(added) == 0 {
		s.mu.Unlock()
		return 0
	}
	sink := s.sink
	s.commitLocked(id, e)
	s.archive(sink, id, added...)
	for _, m := range added {
		s.bus.Emit(bus.MessageAppended, MessageEvent{ConversationID: id, Message: m})
	}
	return len(added)
}

// Reconcile replaces the provisional entry with its confirmed version. The
// entry keeps its slot unless the confirmed timestamp breaks ordering, in
// which case it moves. If the confirmed id is already present the
// provisional entry is dropped. Without a provisional entry the confirmed
// message is appended. It reports whether the store changed.
func (s *Store) Reconcile(id chat.ConversationID, provisionalID string, confirmed chat.Message) bool {
	s.mu.Lock()
	e := s.entryLocked(id)
	confirmed.State = chat.Confirmed
	confirmed.ClientID = provisionalID
	s.stampLocked(&confirmed)

	idx := e.indexOf(provisionalID)
	_, known := e.ids[confirmed.ID]
	switch {
	case known && idx < 0:
		s.mu.Unlock()
		return false
	case known:
		e.remove(idx)
	case idx < 0:
		e.insert(confirmed)
	default:
		confirmed.Outgoing = confirmed.Outgoing || e.messages[idx].Outgoing
		e.replace(idx, confirmed)
	}
	sink := s.sink
	s.commitLocked(id, e)
	s.archive(sink, id, confirmed)
	s.bus.Emit(bus.MessageReconciled, MessageEvent{ConversationID: id, Message: confirmed, ReplacedID: provisionalID})
	return true
}

// MarkFailed flags a pending message as failed. It reports false when the
// message is missing or no longer pending.
func (s *Store) MarkFailed(id chat.ConversationID, messageID string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	idx := e.indexOf(messageID)
	if idx < 0 || e.messages[idx].State != chat.Pending {
		s.mu.Unlock()
		return false
	}
	e.messages[idx].State = chat.Failed
	s.commitLocked(id, e)
	return true
}

// Discard removes a failed message so it can be resent.
func (s *Store) Discard(id chat.ConversationID, messageID string) (chat.Message, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrUnknownMessage
	}
	idx := e.indexOf(messageID)
	if idx < 0 || e.messages[idx].State != chat.Failed {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrUnknownMessage
	}
	m := e.messages[idx]
	e.remove(idx)
	s.commitLocked(id, e)
	return m, nil
}

// SetConnectionState records the stream state shown for a conversation.
func (s *Store) SetConnectionState(id chat.ConversationID, state chat.ConnectionState, err error) {
	s.mu.Lock()
	e := s.entryLocked(id)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if e.meta.ConnectionState == state && e.meta.ConnectionError == msg {
		s.mu.Unlock()
		return
	}
	e.meta.ConnectionState = state
	e.meta.ConnectionError = msg
	s.commitLocked(id, e)
}

// SetActive marks the conversation the user is looking at and clears its
// unread count. An empty id clears the active conversation.
func (s *Store) SetActive(id chat.ConversationID) {
	s.mu.Lock()
	s.active = id
	if id == "" {
		s.mu.Unlock()
		return
	}
	e := s.entryLocked(id)
	e.meta.Unread = 0
	s.commitLocked(id, e)
}

// GetOrdered returns a copy of the conversation's messages in order.
func (s *Store) GetOrdered(id chat.ConversationID) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	return slices.Clone(e.messages)
}

// Snapshot returns the current state of a conversation without changing it.
func (s *Store) Snapshot(id chat.ConversationID) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return Update{}, false
	}
	return Update{
		Conversation: e.summary(),
		Revision:     e.revision,
		Messages:     slices.Clone(e.messages),
	}, true
}

// Message looks up a single message.
func (s *Store) Message(id chat.ConversationID, messageID string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return chat.Message{}, false
	}
	idx := e.indexOf(messageID)
	if idx < 0 {
		return chat.Message{}, false
	}
	return e.messages[idx], true
}

// Conversation returns the metadata of one conversation.
func (s *Store) Conversation(id chat.ConversationID) (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return chat.Conversation{}, false
	}
	return e.summary(), true
}

// Conversations lists all conversations, most recent activity first.
func (s *Store) Conversations() []chat.Conversation {
	s.mu.Lock()
	out := make([]chat.Conversation, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.summary())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b chat.Conversation) int {
		var ta, tb int64
		if a.LastMessage != nil {
			ta = a.LastMessage.Timestamp.UnixNano()
		}
		if b.LastMessage != nil {
			tb = b.LastMessage.Timestamp.UnixNano()
		}
		if c := cmp.Compare(tb, ta); c != 0 {
			return c
		}
		return strings.Compare(a.DisplayName(), b.DisplayName())
	})
	return out
}

// Subscribe registers fn for updates of one conversation. The returned
// function removes the subscription.
func (s *Store) Subscribe(id chat.ConversationID, fn Listener) func() {
	s.mu.Lock()
	e := s.entryLocked(id)
	sid := s.nextSub
	s.nextSub++
	e.subs[sid] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(e.subs, sid)
			s.mu.Unlock()
		})
	}
}

// commitLocked bumps the revision, releases s.mu and notifies subscribers.
// It must be called with s.mu held.
func (s *Store) commitLocked(id chat.ConversationID, e *entry) Update {
	e.revision++
	u := Update{
		Conversation: e.summary(),
		Revision:     e.revision,
		Messages:     slices.Clone(e.messages),
	}
	listeners := make([]Listener, 0, len(e.subs))
	for _, fn := range e.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(u)
	}
	s.bus.Emit(bus.ConversationUpserted, u.Conversation)
	return u
}

func (e *entry) summary() chat.Conversation {
	c := e.meta
	if n := len(e.messages); n > 0 {
		last := e.messages[n-1]
		c.LastMessage = &last
	}
	return c
}

func (e *entry) indexOf(messageID string) int {
	if _, ok := e.ids[messageID]; !ok {
		return -1
	}
	return slices.IndexFunc(e.messages, func(m chat.Message) bool { return m.ID == messageID })
}

func (e *entry) insert(m chat.Message) {
	i, _ := slices.BinarySearchFunc(e.messages, m, chat.Compare)
	e.messages = slices.Insert(e.messages, i, m)
	e.ids[m.ID] = struct{}{}
}

func (e *entry) remove(idx int) {
	delete(e.ids, e.messages[idx].ID)
	e.messages = slices.Delete(e.messages, idx, idx+1)
}

// replace swaps the message at idx, moving it only if ordering breaks.
func (e *entry) replace(idx int, m chat.Message) {
	delete(e.ids, e.messages[idx].ID)
	e.ids[m.ID] = struct{}{}
	inPlace := (idx == 0 || chat.Compare(e.messages[idx-1], m) < 0) &&
		(idx == len(e.messages)-1 || chat.Compare(m, e.messages[idx+1]) < 0)
	if inPlace {
		e.messages[idx] = m
		return
	}
	e.messages = slices.Delete(e.messages, idx, idx+1)
	i, _ := slices.BinarySearchFunc(e.messages, m, chat.Compare)
	e.messages = slices.Insert(e.messages, i, m)
}
