package archive

import (
	"context"
	"time"

	"github.com/matheus3301/precinct/internal/chat"
)

// UpsertConversation records directory metadata. Empty names never
// overwrite a known one.
func (db *DB) UpsertConversation(ctx context.Context, c chat.Conversation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_id, participant_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			participant_id = COALESCE(NULLIF(excluded.participant_id, ''), participant_id),
			participant_name = COALESCE(NULLIF(excluded.participant_name, ''), participant_name),
			updated_at = excluded.updated_at`,
		string(c.ID), c.ParticipantID, c.ParticipantName, time.Now().UnixMilli())
	return err
}

// ListConversations returns archived conversations, most recent activity first.
func (db *DB) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, participant_id, participant_name
		FROM conversations
		ORDER BY last_message_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []chat.Conversation
	for rows.Next() {
		var id string
		c := chat.Conversation{ConnectionState: chat.Disconnected}
		if err := rows.Scan(&id, &c.ParticipantID, &c.ParticipantName); err != nil {
			return nil, err
		}
		c.ID = chat.ConversationID(id)
		out = append(out, c)
	}
	return out, rows.Err()
}
