package chat

// RawStatus is what the write path last observed for a message.
type RawStatus string

const (
	RawSending RawStatus = "sending"
	RawSent    RawStatus = "sent"
	RawFailed  RawStatus = "failed"
)

// Lifecycle is the optimistic lifecycle of a local entry, independent of
// delivery semantics.
type Lifecycle string

const (
	Pending   Lifecycle = "pending"
	Confirmed Lifecycle = "confirmed"
	Failed    Lifecycle = "failed"
)

// DeliveryStatus is the effective per-message status derived for display.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Message represents one chat line. Identity is stable across the
// optimistic→confirmed transition via ClientID, never the server id.
type Message struct {
	ID         string // server-assigned once confirmed; empty while optimistic
	ClientID   string // locally generated, stable for the logical message across retries
	ChatID     string
	SenderID   string
	Text       string
	Timestamp  int64 // unix ms; client-assigned at creation, server once confirmed
	RawStatus  RawStatus
	Lifecycle  Lifecycle
	ReadBy     []string
	RetryCount int
	ErrorText  string
	ErrKind    ErrorKind
}

// HasRead reports whether userID has acknowledged the message.
func (m *Message) HasRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkRead appends userID to ReadBy. Adding an existing member is a no-op.
func (m *Message) MarkRead(userID string) bool {
	if m.HasRead(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// Chat represents a conversation container.
type Chat struct {
	ID            string
	Participants  []string
	UnreadCounts  map[string]int   // user id → unread count
	ActiveViewers map[string]int64 // user id → last-seen-viewing unix ms
	Typing        map[string]int64 // user id → last typing signal unix ms
	LastMessage   string
	LastMessageAt int64
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// IsActivelyViewing reports whether userID was seen viewing the chat within
// the given window of now (both unix ms). The window edge counts as active.
func (c *Chat) IsActivelyViewing(userID string, now, windowMS int64) bool {
	seen, ok := c.ActiveViewers[userID]
	if !ok {
		return false
	}
	return now-seen <= windowMS
}
