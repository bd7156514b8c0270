package archive

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/precinct/internal/chat"
)

// UpsertMessage archives a confirmed message, idempotent on conversation and
// server id. Pending and failed messages are not archived.
func (db *DB) UpsertMessage(ctx context.Context, id chat.ConversationID, m chat.Message) error {
	return db.UpsertMessages(ctx, id, []chat.Message{m})
}

// UpsertMessages archives a batch of confirmed messages of one conversation
// in a single transaction. Any unconfirmed message fails the whole batch.
func (db *DB) UpsertMessages(ctx context.Context, id chat.ConversationID, msgs []chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	var newest int64
	for _, m := range msgs {
		if m.State != chat.Confirmed || chat.IsProvisional(m.ID) {
			return fmt.Errorf("archive %s/%s: only confirmed messages are archived", id, m.ID)
		}
		newest = max(newest, m.Timestamp.UnixMilli())
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_id, last_message_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		string(id), id.Peer(), newest, now); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, msg_id, client_id, sender_id, body, outgoing, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			client_id = COALESCE(NULLIF(excluded.client_id, ''), client_id),
			body = excluded.body,
			outgoing = MAX(outgoing, excluded.outgoing)`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, string(id), m.ID, m.ClientID, m.SenderID, m.Body, m.Outgoing, m.Timestamp.UnixMilli(), now); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit of the newest archived messages of a
// conversation, oldest first.
func (db *DB) Recent(ctx context.Context, id chat.ConversationID, limit int) ([]chat.Message, error) {
	msgs, err := db.ListMessages(ctx, id, time.Time{}, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// ListMessages pages backwards through a conversation: messages strictly
// older than before, newest first. A zero before starts at the newest.
func (db *DB) ListMessages(ctx context.Context, id chat.ConversationID, before time.Time, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	beforeTs := before.UnixMilli()
	if before.IsZero() {
		beforeTs = time.Now().Add(24 * time.Hour).UnixMilli()
	}
	rows, err := db.QueryContext(ctx, `
		SELECT msg_id, client_id, sender_id, body, outgoing, timestamp
		FROM messages
		WHERE conversation_id = ? AND timestamp < ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, string(id), beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, extra ...any) (chat.Message, error) {
	var (
		m  chat.Message
		ts int64
	)
	dest := append([]any{&m.ID, &m.ClientID, &m.SenderID, &m.Body, &m.Outgoing, &ts}, extra...)
	if err := s.Scan(dest...); err != nil {
		return chat.Message{}, err
	}
	m.Timestamp = time.UnixMilli(ts).UTC()
	m.State = chat.Confirmed
	return m, nil
}
