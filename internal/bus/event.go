package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced. The engine publishes:
//
//	message.upserted    a message row changed (optimistic insert, confirm, fail)
//	message.send_ack    a send or retry reached the remote store
//	message.send_failed a send or retry failed; payload carries the classified kind
//	chat.updated        chat summary, unread counts or presence changed
//	receipt.updated     a read receipt was recorded
//	network.up          reachability transitioned to reachable
//	network.down        reachability transitioned to unreachable
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
