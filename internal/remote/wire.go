package remote

import (
	"encoding/json"

	"github.com/reena96/messageai/internal/chat"
)

// envelope is the server→client wire format.
type envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// command is the client→server wire format.
type command struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackPayload struct {
	ServerID string `json:"serverId,omitempty"`
}

type subscribePayload struct {
	ChatID string `json:"chatId"`
}

type writePayload struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

type summaryPayload struct {
	ChatID           string         `json:"chatId"`
	LastMessage      string         `json:"lastMessage"`
	UnreadIncrements map[string]int `json:"unreadIncrements,omitempty"`
}

type receiptPayload struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

type typingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type presencePayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type wireMessage struct {
	ID        string   `json:"id"`
	SenderID  string   `json:"senderId"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"`
	ReadBy    []string `json:"readBy,omitempty"`
}

type snapshotPayload struct {
	ChatID   string        `json:"chatId"`
	Messages []wireMessage `json:"messages"`
}

type chatMetaPayload struct {
	ChatID        string           `json:"chatId"`
	Participants  []string         `json:"participants"`
	ActiveViewers map[string]int64 `json:"activeViewers,omitempty"`
	Typing        map[string]int64 `json:"typing,omitempty"`
	UnreadCounts  map[string]int   `json:"unreadCounts,omitempty"`
	LastMessage   Variant          `json:"lastMessage,omitempty"`
	LastMessageAt int64            `json:"lastMessageAt,omitempty"`
}

func unmarshalPayload(env envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, v)
}

// toMessage converts a wire message to the confirmed domain form. The client
// id mirrors the server id so store upserts key cleanly; reconciliation
// decides which optimistic entry, if any, the row supersedes.
func (w *wireMessage) toMessage(chatID string) chat.Message {
	return chat.Message{
		ID:        w.ID,
		ClientID:  w.ID,
		ChatID:    chatID,
		SenderID:  w.SenderID,
		Text:      w.Text,
		Timestamp: w.Timestamp,
		RawStatus: chat.RawSent,
		Lifecycle: chat.Confirmed,
		ReadBy:    w.ReadBy,
	}
}

func (p *chatMetaPayload) toChat() *chat.Chat {
	return &chat.Chat{
		ID:            p.ChatID,
		Participants:  p.Participants,
		ActiveViewers: p.ActiveViewers,
		Typing:        p.Typing,
		UnreadCounts:  p.UnreadCounts,
		LastMessage:   p.LastMessage.AsText(),
		LastMessageAt: p.LastMessageAt,
	}
}
