// Package status derives the effective delivery status of a message and
// enforces the optimistic lifecycle transitions of local entries.
package status

import (
	"fmt"
	"slices"

	"github.com/reena96/messageai/internal/chat"
)

// validTransitions defines the allowed optimistic lifecycle moves. Confirmed
// is terminal: delivered/read are derived, never stored as lifecycle states.
var validTransitions = map[chat.Lifecycle][]chat.Lifecycle{
	chat.Pending:   {chat.Confirmed, chat.Failed},
	chat.Failed:    {chat.Pending},
	chat.Confirmed: {},
}

// Transition checks that moving a message from its current lifecycle to the
// target is legal. Returns an error for anything outside the table, including
// resurrecting a confirmed entry.
func Transition(from, to chat.Lifecycle) error {
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("invalid lifecycle transition from %s to %s", from, to)
	}
	return nil
}

// Resolve derives the delivery status of msg for display to currentUserID.
//
// Failed and in-flight raw states pass through. For the sender's own
// confirmed messages the state derives from the read-receipt set: any other
// participant having read it surfaces as "read" (partial group reads are not
// distinguished from full ones), otherwise "delivered". A chat with no other
// participants caps at "sent". Messages authored by someone else always
// resolve to "delivered"; recipients don't see sender-facing receipts on
// their own copy.
func Resolve(msg *chat.Message, participants []string, currentUserID string) chat.DeliveryStatus {
	switch msg.RawStatus {
	case chat.RawFailed:
		return chat.StatusFailed
	case chat.RawSending:
		return chat.StatusSending
	}

	if msg.SenderID != currentUserID {
		return chat.StatusDelivered
	}

	others := 0
	readByOther := false
	for _, p := range participants {
		if p == currentUserID {
			continue
		}
		others++
		if msg.HasRead(p) {
			readByOther = true
		}
	}

	if others == 0 {
		return chat.StatusSent
	}
	if readByOther {
		return chat.StatusRead
	}
	return chat.StatusDelivered
}
