package store

import "time"

// RetryEntry is a durable pending-resend record: just enough context to
// re-attempt the send without re-reading UI state.
type RetryEntry struct {
	ClientID string
	ChatID   string
	SenderID string
	Body     string
	QueuedAt int64
}

// QueueRetry inserts a pending-resend entry. Idempotent per client id.
func (db *DB) QueueRetry(e *RetryEntry) error {
	if e.QueuedAt == 0 {
		e.QueuedAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO retry_queue (client_id, chat_id, sender_id, body, queued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO NOTHING`,
		e.ClientID, e.ChatID, e.SenderID, e.Body, e.QueuedAt)
	return err
}

// RemoveRetry deletes a pending-resend entry.
func (db *DB) RemoveRetry(clientID string) error {
	_, err := db.Exec(`DELETE FROM retry_queue WHERE client_id = ?`, clientID)
	return err
}

// RetryEntries returns all pending-resend entries in queue order.
func (db *DB) RetryEntries() ([]RetryEntry, error) {
	rows, err := db.Query(`
		SELECT client_id, chat_id, sender_id, body, queued_at
		FROM retry_queue ORDER BY queued_at ASC, client_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []RetryEntry
	for rows.Next() {
		var e RetryEntry
		if err := rows.Scan(&e.ClientID, &e.ChatID, &e.SenderID, &e.Body, &e.QueuedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
