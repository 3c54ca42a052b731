package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reena96/messageai/internal/chat"
)

const messageColumns = `chat_id, client_id, server_id, sender_id, body, timestamp,
	raw_status, lifecycle, read_by, retry_count, error_text, error_kind`

// UpsertMessage inserts or updates a message (idempotent on chat_id + client_id).
func (db *DB) UpsertMessage(m *chat.Message) error {
	readBy, err := json.Marshal(orEmpty(m.ReadBy))
	if err != nil {
		return fmt.Errorf("encode read_by: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO messages (chat_id, client_id, server_id, sender_id, body, timestamp,
			raw_status, lifecycle, read_by, retry_count, error_text, error_kind, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, client_id) DO UPDATE SET
			server_id = excluded.server_id,
			body = excluded.body,
			timestamp = excluded.timestamp,
			raw_status = excluded.raw_status,
			lifecycle = excluded.lifecycle,
			read_by = excluded.read_by,
			retry_count = excluded.retry_count,
			error_text = excluded.error_text,
			error_kind = excluded.error_kind`,
		m.ChatID, m.ClientID, m.ID, m.SenderID, m.Text, m.Timestamp,
		string(m.RawStatus), string(m.Lifecycle), string(readBy),
		m.RetryCount, m.ErrorText, string(m.ErrKind), now)
	return err
}

// GetMessage returns a single message by chat and client id, or nil.
func (db *DB) GetMessage(chatID, clientID string) (*chat.Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? AND client_id = ?`,
		chatID, clientID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns the merged timeline for a chat: authoritative messages
// first in server-timestamp order, then locally fabricated entries in
// client-insertion order (they are newer than anything already confirmed).
func (db *DB) ListMessages(chatID string) ([]chat.Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ?
		ORDER BY
			CASE WHEN server_id != '' THEN 0 ELSE 1 END,
			CASE WHEN server_id != '' THEN timestamp ELSE inserted_at END ASC,
			id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// LocalEntries returns the locally held optimistic entries for a chat: rows
// without a server id, whether in flight, failed, or confirmed echoes not yet
// superseded by a snapshot. Ordered by insertion.
func (db *DB) LocalEntries(chatID string) ([]chat.Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND server_id = ''
		ORDER BY inserted_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// FindMessage resolves id as either a client id or a server id within a chat.
// Returns nil when unknown.
func (db *DB) FindMessage(chatID, id string) (*chat.Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ? AND (client_id = ? OR server_id = ?)`, chatID, id, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMessage removes a message row.
func (db *DB) DeleteMessage(chatID, clientID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE chat_id = ? AND client_id = ?`, chatID, clientID)
	return err
}

// ApplyMerge writes the result of a reconciliation pass in one transaction:
// superseded optimistic rows are dropped, authoritative rows upserted.
func (db *DB) ApplyMerge(chatID string, upserts []chat.Message, dropClientIDs []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, clientID := range dropClientIDs {
		if _, err := tx.Exec(`DELETE FROM messages WHERE chat_id = ? AND client_id = ?`, chatID, clientID); err != nil {
			return fmt.Errorf("drop superseded %s: %w", clientID, err)
		}
	}

	now := time.Now().UnixMilli()
	for i := range upserts {
		m := &upserts[i]
		readBy, err := json.Marshal(orEmpty(m.ReadBy))
		if err != nil {
			return fmt.Errorf("encode read_by: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (chat_id, client_id, server_id, sender_id, body, timestamp,
				raw_status, lifecycle, read_by, retry_count, error_text, error_kind, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, client_id) DO UPDATE SET
				server_id = excluded.server_id,
				body = excluded.body,
				timestamp = excluded.timestamp,
				raw_status = excluded.raw_status,
				lifecycle = excluded.lifecycle,
				read_by = excluded.read_by`,
			m.ChatID, m.ClientID, m.ID, m.SenderID, m.Text, m.Timestamp,
			string(m.RawStatus), string(m.Lifecycle), string(readBy),
			m.RetryCount, m.ErrorText, string(m.ErrKind), now); err != nil {
			return fmt.Errorf("upsert message in merge: %w", err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*chat.Message, error) {
	var m chat.Message
	var rawStatus, lifecycle, readBy, errKind string
	if err := row.Scan(&m.ChatID, &m.ClientID, &m.ID, &m.SenderID, &m.Text, &m.Timestamp,
		&rawStatus, &lifecycle, &readBy, &m.RetryCount, &m.ErrorText, &errKind); err != nil {
		return nil, err
	}
	m.RawStatus = chat.RawStatus(rawStatus)
	m.Lifecycle = chat.Lifecycle(lifecycle)
	m.ErrKind = chat.ErrorKind(errKind)
	if err := json.Unmarshal([]byte(readBy), &m.ReadBy); err != nil {
		return nil, fmt.Errorf("decode read_by: %w", err)
	}
	return &m, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
