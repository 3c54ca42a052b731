// Package outbox holds the retry queue: the set of messages pending an
// automatic or manual resend attempt.
package outbox

import (
	"sync"

	"github.com/reena96/messageai/internal/store"
	"go.uber.org/zap"
)

// Queue is the set of pending-resend entries. It keeps an in-memory index for
// synchronous reads and mirrors every mutation to the store's retry_queue
// table so queued sends survive a restart. Entries leave only on successful
// retry or explicit discard; they never expire.
type Queue struct {
	mu       sync.Mutex
	db       *store.DB
	entries  map[string]store.RetryEntry // client id → entry
	order    []string                    // queue order
	inflight map[string]bool             // retries currently being attempted
	logger   *zap.Logger
}

// NewQueue creates a queue, reloading any entries persisted by a previous run.
func NewQueue(db *store.DB, logger *zap.Logger) (*Queue, error) {
	q := &Queue{
		db:       db,
		entries:  make(map[string]store.RetryEntry),
		inflight: make(map[string]bool),
		logger:   logger,
	}
	persisted, err := db.RetryEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range persisted {
		q.entries[e.ClientID] = e
		q.order = append(q.order, e.ClientID)
	}
	if len(persisted) > 0 && logger != nil {
		logger.Info("retry queue restored", zap.Int("entries", len(persisted)))
	}
	return q, nil
}

// Add inserts an entry. Adding an already-queued client id is a no-op.
func (q *Queue) Add(e store.RetryEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[e.ClientID]; ok {
		return nil
	}
	if err := q.db.QueueRetry(&e); err != nil {
		return err
	}
	q.entries[e.ClientID] = e
	q.order = append(q.order, e.ClientID)
	return nil
}

// Remove deletes an entry, both in memory and durably.
func (q *Queue) Remove(clientID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[clientID]; !ok {
		return nil
	}
	if err := q.db.RemoveRetry(clientID); err != nil {
		return err
	}
	delete(q.entries, clientID)
	for i, id := range q.order {
		if id == clientID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// Contains reports whether the client id is queued.
func (q *Queue) Contains(clientID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[clientID]
	return ok
}

// Size returns the number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a snapshot of the queue in order.
func (q *Queue) Entries() []store.RetryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]store.RetryEntry, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id])
	}
	return out
}

// BeginRetry marks a retry attempt in flight. Returns false when another
// attempt for the same client id is already running; the caller must then
// skip this one.
func (q *Queue) BeginRetry(clientID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight[clientID] {
		return false
	}
	q.inflight[clientID] = true
	return true
}

// EndRetry clears the in-flight mark for a client id.
func (q *Queue) EndRetry(clientID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, clientID)
}
