package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/precinct/internal/bus"
	"github.com/matheus3301/precinct/internal/chat"
	"github.com/matheus3301/precinct/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func confirmed(id, sender, body string, ts time.Time) chat.Message {
	return chat.Message{ID: id, SenderID: sender, Body: body, Timestamp: ts, State: chat.Confirmed}
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	res, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if res.Version != 2 || res.Dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", res.Version, res.Dirty)
	}
}

func TestUpsertAndRecent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	conv := chat.Direct("3")

	for i, body := range []string{"one", "two", "three"} {
		m := confirmed(string(rune('1'+i)), "3", body, t0.Add(time.Duration(i)*time.Minute))
		if err := db.UpsertMessage(ctx, conv, m); err != nil {
			t.Fatal(err)
		}
	}
	// Replays do not duplicate.
	if err := db.UpsertMessage(ctx, conv, confirmed("1", "3", "one", t0)); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.Recent(ctx, conv, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Body != "two" || msgs[1].Body != "three" {
		t.Fatalf("Recent() = %+v", msgs)
	}
	if msgs[1].State != chat.Confirmed || !msgs[1].Timestamp.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("last = %+v", msgs[1])
	}

	older, err := db.ListMessages(ctx, conv, t0.Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].ID != "1" {
		t.Errorf("ListMessages(before two) = %+v", older)
	}
}

func TestUpsertRejectsUnconfirmed(t *testing.T) {
	db := testDB(t)
	m := chat.Message{ID: "local-1", SenderID: "7", Body: "x", Timestamp: t0, State: chat.Pending}
	if err := db.UpsertMessage(context.Background(), chat.Direct("3"), m); err == nil {
		t.Error("pending message should not be archived")
	}
}

func TestConversations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertConversation(ctx, chat.Conversation{ID: chat.Direct("3"), ParticipantID: "3", ParticipantName: "Dispatch"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(ctx, chat.Conversation{ID: chat.Direct("4"), ParticipantID: "4", ParticipantName: "Desk"}); err != nil {
		t.Fatal(err)
	}
	// A message makes 4 the most recent; an unnamed upsert keeps the name.
	if err := db.UpsertMessage(ctx, chat.Direct("4"), confirmed("9", "4", "hi", t0)); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(ctx, chat.Conversation{ID: chat.Direct("4")}); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations", len(convs))
	}
	if convs[0].ID != chat.Direct("4") || convs[0].ParticipantName != "Desk" {
		t.Errorf("first = %+v", convs[0])
	}
	if convs[1].DisplayName() != "Dispatch" {
		t.Errorf("second = %+v", convs[1])
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertMessage(ctx, chat.Direct("3"), confirmed("1", "3", "suspect vehicle heading north", t0))
	_ = db.UpsertMessage(ctx, chat.Direct("4"), confirmed("2", "4", "vehicle recovered", t0))
	_ = db.UpsertMessage(ctx, chat.Direct("4"), confirmed("3", "4", "shift change", t0))

	hits, err := db.Search(ctx, "vehicle", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.Snippet == "" {
			t.Errorf("hit %s without snippet", h.Message.ID)
		}
	}

	hits, err = db.Search(ctx, "vehicle", chat.Direct("4"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Message.ID != "2" || hits[0].ConversationID != chat.Direct("4") {
		t.Errorf("scoped hits = %+v", hits)
	}
}

func TestSearchFollowsEdits(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_ = db.UpsertMessage(ctx, chat.Direct("3"), confirmed("1", "3", "alpha", t0))
	_ = db.UpsertMessage(ctx, chat.Direct("3"), confirmed("1", "3", "bravo", t0))

	if hits, _ := db.Search(ctx, "alpha", "", 10); len(hits) != 0 {
		t.Errorf("stale body still indexed: %+v", hits)
	}
	if hits, _ := db.Search(ctx, "bravo", "", 10); len(hits) != 1 {
		t.Errorf("new body not indexed: %+v", hits)
	}
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if _, ok, err := db.Checkpoint(ctx, "directory.synced_at"); err != nil || ok {
		t.Fatalf("Checkpoint() on empty = ok %v err %v", ok, err)
	}
	_ = db.SetCheckpoint(ctx, "directory.synced_at", "1")
	_ = db.SetCheckpoint(ctx, "directory.synced_at", "2")
	v, ok, err := db.Checkpoint(ctx, "directory.synced_at")
	if err != nil || !ok || v != "2" {
		t.Errorf("Checkpoint() = %q %v %v", v, ok, err)
	}
}

func testWriter(t *testing.T) (*Writer, *store.Store, *DB) {
	t.Helper()
	db := testDB(t)
	w := NewWriter(db, zap.NewNop())
	st := store.New(bus.New(), zap.NewNop())
	st.SetSink(w)
	w.Start()
	return w, st, db
}

func TestWriterArchivesConfirmed(t *testing.T) {
	w, st, db := testWriter(t)
	conv := chat.Direct("3")

	st.AppendMessage(conv, chat.Message{ID: "local-1", SenderID: "7", Body: "pending", Timestamp: t0, State: chat.Pending})
	st.Reconcile(conv, "local-1", confirmed("55", "7", "pending", t0))
	st.AppendMessage(conv, confirmed("56", "3", "reply", t0.Add(time.Second)))
	w.Stop()

	if w.Written() != 2 {
		t.Errorf("Written() = %d, want 2", w.Written())
	}
	msgs, err := db.Recent(context.Background(), conv, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != "55" || msgs[1].ID != "56" {
		t.Fatalf("archived = %+v", msgs)
	}
	if msgs[0].ClientID != "local-1" {
		t.Errorf("ClientID = %q, want local-1", msgs[0].ClientID)
	}
}

func TestWriterKeepsLargeHistoryMerge(t *testing.T) {
	w, st, db := testWriter(t)
	conv := chat.Direct("3")

	const n = 2000
	history := make([]chat.Message, n)
	for i := range history {
		history[i] = confirmed(fmt.Sprintf("h%d", i), "3", fmt.Sprintf("entry %d", i), t0.Add(time.Duration(i)*time.Second))
	}
	if added := st.MergeMessages(conv, history); added != n {
		t.Fatalf("MergeMessages() = %d, want %d", added, n)
	}
	// A second burst while the first may still be queued.
	st.MergeMessages(chat.Direct("4"), history[:600])
	w.Stop()

	if got := w.Written(); got != n+600 {
		t.Errorf("Written() = %d, want %d", got, n+600)
	}
	if got := w.Failed(); got != 0 {
		t.Errorf("Failed() = %d, want 0", got)
	}
	msgs, err := db.Recent(context.Background(), conv, n+10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != n {
		t.Fatalf("archived %d of %d merged messages", len(msgs), n)
	}
	if msgs[0].ID != "h0" || msgs[n-1].ID != fmt.Sprintf("h%d", n-1) {
		t.Errorf("archive order: first %s last %s", msgs[0].ID, msgs[n-1].ID)
	}
}

func TestWriterDrainsWhenStoppedBeforeStart(t *testing.T) {
	db := testDB(t)
	w := NewWriter(db, zap.NewNop())
	w.Archive(chat.Direct("3"), []chat.Message{
		confirmed("1", "3", "queued", t0),
		{ID: "local-2", SenderID: "7", Body: "pending", Timestamp: t0, State: chat.Pending},
	})
	w.Stop()
	if w.Written() != 1 {
		t.Errorf("Written() = %d, want 1", w.Written())
	}

	w.Archive(chat.Direct("3"), []chat.Message{confirmed("2", "3", "late", t0)})
	if w.Written() != 1 {
		t.Errorf("Archive after Stop wrote: Written() = %d", w.Written())
	}
}
