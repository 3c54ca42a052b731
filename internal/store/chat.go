package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reena96/messageai/internal/chat"
)

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *chat.Chat) error {
	participants, err := json.Marshal(orEmpty(c.Participants))
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	unread, err := json.Marshal(orEmptyCounts(c.UnreadCounts))
	if err != nil {
		return fmt.Errorf("encode unread_counts: %w", err)
	}
	viewers, err := json.Marshal(orEmptyStamps(c.ActiveViewers))
	if err != nil {
		return fmt.Errorf("encode active_viewers: %w", err)
	}
	typing, err := json.Marshal(orEmptyStamps(c.Typing))
	if err != nil {
		return fmt.Errorf("encode typing: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO chats (chat_id, participants, unread_counts, active_viewers, typing,
			last_message, last_message_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			participants = excluded.participants,
			unread_counts = excluded.unread_counts,
			active_viewers = excluded.active_viewers,
			typing = excluded.typing,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		c.ID, string(participants), string(unread), string(viewers), string(typing),
		c.LastMessage, c.LastMessageAt, now)
	return err
}

// GetChat returns a single chat by id, or nil when unknown.
func (db *DB) GetChat(chatID string) (*chat.Chat, error) {
	var c chat.Chat
	var participants, unread, viewers, typing string
	err := db.QueryRow(`
		SELECT chat_id, participants, unread_counts, active_viewers, typing,
			last_message, last_message_at
		FROM chats WHERE chat_id = ?`, chatID).
		Scan(&c.ID, &participants, &unread, &viewers, &typing, &c.LastMessage, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(unread), &c.UnreadCounts); err != nil {
		return nil, fmt.Errorf("decode unread_counts: %w", err)
	}
	if err := json.Unmarshal([]byte(viewers), &c.ActiveViewers); err != nil {
		return nil, fmt.Errorf("decode active_viewers: %w", err)
	}
	if err := json.Unmarshal([]byte(typing), &c.Typing); err != nil {
		return nil, fmt.Errorf("decode typing: %w", err)
	}
	return &c, nil
}

func orEmptyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func orEmptyStamps(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}
