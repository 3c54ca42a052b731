// Package remote defines the narrow interface to the remote real-time store
// and a websocket client implementing it.
package remote

import (
	"context"

	"github.com/reena96/messageai/internal/chat"
)

// Store is the engine's view of the remote real-time store. The store owns
// durable message persistence; the engine only appends, annotates, and
// observes ordered snapshots.
type Store interface {
	// SubscribeMessages opens a snapshot subscription for one chat.
	// onSnapshot receives the chat's full ordered message sequence
	// (ascending server timestamp) on every change. Returns an unsubscribe
	// function; unsubscribing stops snapshot delivery only.
	SubscribeMessages(chatID string, onSnapshot func([]chat.Message), onError func(error)) (func(), error)

	// WriteMessage appends a message durably and returns its server id.
	WriteMessage(ctx context.Context, chatID, senderID, text string) (serverID string, err error)

	// UpdateChatSummary updates the chat's last-message preview and applies
	// per-participant unread increments.
	UpdateChatSummary(ctx context.Context, chatID, lastMessage string, unreadIncrements map[string]int) error

	// UpdateReadReceipt appends userID to a message's readBy set. Best-effort.
	UpdateReadReceipt(ctx context.Context, chatID, messageID, userID string) error

	// UpdateTyping records a typing signal for userID in the chat. Best-effort.
	UpdateTyping(ctx context.Context, chatID, userID string, typing bool) error

	// UpdatePresence records that userID is actively viewing the chat. Best-effort.
	UpdatePresence(ctx context.Context, chatID, userID string) error

	// ReadChatMeta returns the chat's participants and presence maps.
	ReadChatMeta(ctx context.Context, chatID string) (*chat.Chat, error)
}

// Server error codes carried on error envelopes, mapped onto the engine's
// failure taxonomy before they reach callers.
const (
	CodeUnavailable      = "unavailable"
	CodePermissionDenied = "permission-denied"
	CodeInvalidArgument  = "invalid-argument"
)
