package store

import (
	"github.com/reena96/messageai/internal/chat"
)

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message chat.Message
	Snippet string
}

// SearchMessages performs a full-text search on message bodies.
func (db *DB) SearchMessages(query string, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.chat_id, m.client_id, m.server_id, m.sender_id, m.body, m.timestamp,
		       m.raw_status, m.lifecycle, m.read_by, m.retry_count, m.error_text, m.error_kind,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if chatID != "" {
		q += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rawStatus, lifecycle, readBy, errKind string
		if err := rows.Scan(
			&r.Message.ChatID, &r.Message.ClientID, &r.Message.ID,
			&r.Message.SenderID, &r.Message.Text, &r.Message.Timestamp,
			&rawStatus, &lifecycle, &readBy, &r.Message.RetryCount,
			&r.Message.ErrorText, &errKind, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.RawStatus = chat.RawStatus(rawStatus)
		r.Message.Lifecycle = chat.Lifecycle(lifecycle)
		r.Message.ErrKind = chat.ErrorKind(errKind)
		results = append(results, r)
	}
	return results, rows.Err()
}
