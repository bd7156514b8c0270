package selector

import (
	"context"
	"sync"

	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/store"
)

type watcher struct {
	mu     sync.Mutex
	ch     chan store.Update
	conv   chat.ConversationID
	rev    uint64
	seen   bool
	unsub  func()
	closed bool
}

// Watch streams snapshots of the active conversation, starting with the
// current one, and follows conversation switches. A slow reader only sees
// the latest snapshot. The channel is closed when ctx ends or the selector
// is closed.
func (s *Selector) Watch(ctx context.Context) <-chan store.Update {
	w := &watcher{ch: make(chan store.Update, 1)}
	s.mu.Lock()
	wid := s.nextW
	s.nextW++
	s.watchers[wid] = w
	active := s.active
	s.mu.Unlock()

	s.follow(w, active)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		s.mu.Lock()
		delete(s.watchers, wid)
		s.mu.Unlock()
		w.stop()
	}()
	return w.ch
}

func (s *Selector) retarget(id chat.ConversationID) {
	s.mu.Lock()
	ws := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	s.mu.Unlock()
	for _, w := range ws {
		s.follow(w, id)
	}
}

func (s *Selector) follow(w *watcher, id chat.ConversationID) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if w.unsub != nil {
		w.unsub()
		w.unsub = nil
	}
	w.conv, w.rev, w.seen = id, 0, false
	w.mu.Unlock()
	if id == "" {
		return
	}

	unsub := s.store.Subscribe(id, func(u store.Update) { w.push(id, u) })
	w.mu.Lock()
	if w.closed || w.conv != id {
		w.mu.Unlock()
		unsub()
		return
	}
	w.unsub = unsub
	w.mu.Unlock()

	if snap, ok := s.store.Snapshot(id); ok {
		w.push(id, snap)
	}
}

func (w *watcher) push(id chat.ConversationID, u store.Update) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.conv != id || (w.seen && u.Revision <= w.rev) {
		return
	}
	w.rev, w.seen = u.Revision, true
	select {
	case w.ch <- u:
	default:
		select {
		case <-w.ch:
		default:
		}
		w.ch <- u
	}
}

func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.unsub != nil {
		w.unsub()
	}
	close(w.ch)
}
