package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/precinct/internal/chat"
	"go.uber.org/zap"
)

type batch struct {
	conv chat.ConversationID
	msgs []chat.Message
}

// Writer archives confirmed messages behind the store. The store hands it
// every accepted message through Archive; batches queue in memory and a
// single goroutine writes each one in its own transaction, so a slow disk
// never delays the live view and a large history merge is never dropped.
type Writer struct {
	db     *DB
	logger *zap.Logger

	mu      sync.Mutex
	queue   []batch
	closed  bool
	started bool
	wake    chan struct{}

	written atomic.Uint64
	failed  atomic.Uint64
	wg      sync.WaitGroup
}

// NewWriter creates a writer. Archive may be called before Start; queued
// batches are written once the writer runs.
func NewWriter(db *DB, logger *zap.Logger) *Writer {
	return &Writer{db: db, logger: logger, wake: make(chan struct{}, 1)}
}

// Archive queues the confirmed messages of msgs. Pending, failed and
// provisional messages are ignored. It never blocks on the database.
func (w *Writer) Archive(id chat.ConversationID, msgs []chat.Message) {
	keep := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.State == chat.Confirmed && !chat.IsProvisional(m.ID) {
			keep = append(keep, m)
		}
	}
	if len(keep) == 0 {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("archive stopped, messages not written",
			zap.String("conversation", string(id)),
			zap.Int("count", len(keep)))
		return
	}
	w.queue = append(w.queue, batch{conv: id, msgs: keep})
	w.mu.Unlock()
	w.signal()
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start runs the write loop.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.run()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		pending, closed := w.queue, w.closed
		w.queue = nil
		w.mu.Unlock()

		for _, b := range pending {
			w.write(b)
		}
		if len(pending) > 0 {
			continue
		}
		if closed {
			return
		}
		<-w.wake
	}
}

// Stop writes everything still queued and stops the writer. Messages
// archived after Stop are logged and discarded.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	if !started {
		// Never started: drain the queue before returning.
		w.wg.Add(1)
		go w.run()
	}
	w.signal()
	w.wg.Wait()
}

// Written returns how many messages were archived.
func (w *Writer) Written() uint64 { return w.written.Load() }

// Failed returns how many messages could not be written.
func (w *Writer) Failed() uint64 { return w.failed.Load() }

func (w *Writer) write(b batch) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.db.UpsertMessages(ctx, b.conv, b.msgs); err != nil {
		w.failed.Add(uint64(len(b.msgs)))
		w.logger.Warn("archive write failed",
			zap.String("conversation", string(b.conv)),
			zap.Int("count", len(b.msgs)),
			zap.Error(err),
		)
		return
	}
	w.written.Add(uint64(len(b.msgs)))
}
