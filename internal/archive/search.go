package archive

import (
	"context"

	"github.com/matheus3301/precinct/internal/chat"
)

// Search runs a full-text query over archived message bodies, optionally
// restricted to one conversation.
func (db *DB) Search(ctx context.Context, query string, id chat.ConversationID, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT m.msg_id, m.client_id, m.sender_id, m.body, m.outgoing, m.timestamp,
		       m.conversation_id,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`
	args := []any{query}
	if id != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, string(id))
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var (
			h    Hit
			conv string
		)
		m, err := scanMessage(rows, &conv, &h.Snippet)
		if err != nil {
			return nil, err
		}
		h.Message = m
		h.ConversationID = chat.ConversationID(conv)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
