package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reena96/messageai/internal/bus"
	"github.com/reena96/messageai/internal/chat"
	"github.com/reena96/messageai/internal/config"
	"github.com/reena96/messageai/internal/netmon"
	"github.com/reena96/messageai/internal/outbox"
	"github.com/reena96/messageai/internal/remote"
	"github.com/reena96/messageai/internal/status"
	"github.com/reena96/messageai/internal/store"
	"go.uber.org/zap"
)

// Synchronizer is the engine façade. It owns per-chat message state and the
// retry queue; no other component mutates either. The remote store owns
// durable persistence of the authoritative stream.
type Synchronizer struct {
	db      *store.DB
	remote  remote.Store
	queue   *outbox.Queue
	monitor netmon.Monitor
	bus     *bus.Bus
	cfg     *config.Config
	logger  *zap.Logger

	// mu serializes local state mutation. It is released across remote
	// calls: a send in flight never blocks snapshot processing.
	mu       sync.Mutex
	subs     map[string]func()
	unsubNet func()
}

// New creates a synchronizer. Call Start to hook reachability-driven retry
// draining.
func New(db *store.DB, rs remote.Store, queue *outbox.Queue, monitor netmon.Monitor,
	b *bus.Bus, cfg *config.Config, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		db:      db,
		remote:  rs,
		queue:   queue,
		monitor: monitor,
		bus:     b,
		cfg:     cfg,
		logger:  logger,
		subs:    make(map[string]func()),
	}
}

// Start registers the reachability hook. If the monitor already reports
// reachable and a previous run left entries queued, they drain immediately.
func (s *Synchronizer) Start(ctx context.Context) {
	if s.monitor != nil {
		s.unsubNet = s.monitor.OnChange(func(reachable bool) {
			if reachable {
				go s.drain(context.Background())
			}
		})
		if s.monitor.IsReachable() && s.queue.Size() > 0 {
			go s.drain(ctx)
		}
	}
}

// Stop unhooks reachability and closes every chat subscription. In-flight
// sends and retries run to completion; they are fire-and-complete.
func (s *Synchronizer) Stop() {
	if s.unsubNet != nil {
		s.unsubNet()
		s.unsubNet = nil
	}
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]func())
	s.mu.Unlock()
	for _, unsub := range subs {
		unsub()
	}
}

// Subscribe opens a snapshot subscription for a chat. Every snapshot triggers
// a full reconciliation pass and republishes the merged list via the bus.
// The caller owns the lifecycle through the returned unsubscribe; calling it
// stops snapshot processing but never aborts an in-flight send or retry.
func (s *Synchronizer) Subscribe(chatID string) (func(), error) {
	remoteUnsub, err := s.remote.SubscribeMessages(chatID,
		func(snapshot []chat.Message) { s.applySnapshot(chatID, snapshot) },
		func(err error) {
			s.logger.Warn("snapshot stream error", zap.String("chat_id", chatID), zap.Error(err))
		})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", chatID, err)
	}

	s.mu.Lock()
	if prev, ok := s.subs[chatID]; ok {
		// Re-subscribing replaces the previous stream.
		defer prev()
	}
	s.subs[chatID] = remoteUnsub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.subs[chatID] != nil {
				delete(s.subs, chatID)
			}
			s.mu.Unlock()
			remoteUnsub()
		})
	}, nil
}

// applySnapshot runs one reconciliation pass and persists the result.
func (s *Synchronizer) applySnapshot(chatID string, snapshot []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locals, err := s.db.LocalEntries(chatID)
	if err != nil {
		s.logger.Error("read local entries", zap.String("chat_id", chatID), zap.Error(err))
		return
	}

	res := Merge(snapshot, locals, s.cfg.ReconciliationWindowMS)
	if err := s.db.ApplyMerge(chatID, res.Authoritative, res.Superseded); err != nil {
		s.logger.Error("apply merge", zap.String("chat_id", chatID), zap.Error(err))
		return
	}

	s.publish("message.upserted", map[string]any{
		"chat_id":    chatID,
		"count":      len(res.Merged()),
		"superseded": len(res.Superseded),
	})
}

// Send fabricates an optimistic message, makes it observable before any I/O,
// then attempts the durable write. The returned error is the classified
// failure; a nil return does not imply the message has been read, only that
// the write reached the remote store.
func (s *Synchronizer) Send(ctx context.Context, chatID, senderID, text string) error {
	msg := &chat.Message{
		ClientID:  uuid.New().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
		RawStatus: chat.RawSending,
		Lifecycle: chat.Pending,
	}

	s.mu.Lock()
	err := s.db.UpsertMessage(msg)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("insert optimistic message: %w", err)
	}
	s.publish("message.upserted", map[string]any{"chat_id": chatID, "client_id": msg.ClientID})

	return s.attempt(ctx, msg)
}

// Retry re-attempts the same logical send for a failed message, reusing its
// client id. Manual calls and reachability-driven draining share this exact
// path. A retry already in flight suppresses a concurrent attempt for the
// same id.
func (s *Synchronizer) Retry(ctx context.Context, chatID, clientID string) error {
	if !s.queue.BeginRetry(clientID) {
		return nil
	}
	defer s.queue.EndRetry(clientID)

	s.mu.Lock()
	msg, err := s.db.GetMessage(chatID, clientID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load message %s: %w", clientID, err)
	}
	if msg == nil {
		s.mu.Unlock()
		return fmt.Errorf("message %s not found in chat %s", clientID, chatID)
	}
	if err := status.Transition(msg.Lifecycle, chat.Pending); err != nil {
		s.mu.Unlock()
		return err
	}
	msg.Lifecycle = chat.Pending
	msg.RawStatus = chat.RawSending
	msg.RetryCount++
	msg.ErrorText = ""
	msg.ErrKind = chat.ErrKindNone
	err = s.db.UpsertMessage(msg)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("mark message sending: %w", err)
	}
	s.publish("message.upserted", map[string]any{"chat_id": chatID, "client_id": clientID})

	return s.attempt(ctx, msg)
}

// Discard drops a failed message and its retry-queue entry. This is the one
// path besides a successful retry by which a queued entry leaves the queue.
func (s *Synchronizer) Discard(chatID, clientID string) error {
	if err := s.queue.Remove(clientID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteMessage(chatID, clientID); err != nil {
		return err
	}
	s.publish("message.upserted", map[string]any{"chat_id": chatID, "client_id": clientID})
	return nil
}

// attempt performs the durable write and settles the optimistic entry either
// way. Shared by Send and Retry so classification and queue policy exist in
// exactly one place.
func (s *Synchronizer) attempt(ctx context.Context, msg *chat.Message) error {
	serverID, writeErr := s.remote.WriteMessage(ctx, msg.ChatID, msg.SenderID, msg.Text)

	s.mu.Lock()
	// The row may have been superseded by a snapshot while the write was in
	// flight; re-read so a stale copy is never resurrected.
	current, err := s.db.GetMessage(msg.ChatID, msg.ClientID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("reload message %s: %w", msg.ClientID, err)
	}
	if writeErr == nil && current == nil {
		// A snapshot superseded the row while the write was in flight; the
		// authoritative copy is already the only visible one.
		s.mu.Unlock()
		if err := s.queue.Remove(msg.ClientID); err != nil {
			s.logger.Warn("remove from retry queue", zap.Error(err))
		}
		s.publish("message.send_ack", map[string]any{
			"chat_id": msg.ChatID, "client_id": msg.ClientID, "server_id": serverID,
		})
		s.updateChatAfterSend(ctx, msg)
		return nil
	}
	if current == nil {
		current = msg
	}

	if writeErr == nil {
		if current.Lifecycle == chat.Pending {
			current.Lifecycle = chat.Confirmed
		}
		current.RawStatus = chat.RawSent
		current.ErrorText = ""
		current.ErrKind = chat.ErrKindNone
		if err := s.db.UpsertMessage(current); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("confirm message: %w", err)
		}
		s.mu.Unlock()

		if err := s.queue.Remove(current.ClientID); err != nil {
			s.logger.Warn("remove from retry queue", zap.Error(err))
		}
		s.publish("message.send_ack", map[string]any{
			"chat_id": current.ChatID, "client_id": current.ClientID, "server_id": serverID,
		})
		s.logger.Info("message sent",
			zap.String("client_id", current.ClientID), zap.String("server_id", serverID))

		s.updateChatAfterSend(ctx, current)
		return nil
	}

	se := chat.Classify(writeErr)
	current.Lifecycle = chat.Failed
	current.RawStatus = chat.RawFailed
	current.ErrorText = se.UserText()
	current.ErrKind = se.Kind
	if err := s.db.UpsertMessage(current); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("mark message failed: %w", err)
	}
	s.mu.Unlock()

	if se.Recoverable() {
		qErr := s.queue.Add(store.RetryEntry{
			ClientID: current.ClientID,
			ChatID:   current.ChatID,
			SenderID: current.SenderID,
			Body:     current.Text,
		})
		if qErr != nil {
			s.logger.Error("queue retry entry", zap.Error(qErr))
		}
	} else {
		// Retrying would not help; make sure a previously queued entry
		// (from an earlier network failure) does not linger.
		if err := s.queue.Remove(current.ClientID); err != nil {
			s.logger.Warn("remove from retry queue", zap.Error(err))
		}
	}

	s.publish("message.send_failed", map[string]any{
		"chat_id": current.ChatID, "client_id": current.ClientID, "kind": string(se.Kind),
	})
	s.logger.Warn("message send failed",
		zap.String("client_id", current.ClientID),
		zap.String("kind", string(se.Kind)),
		zap.Error(writeErr))
	return se
}

// drain retries every queued entry through the same path a manual retry
// takes. Entries that fail with a network error again simply stay queued.
func (s *Synchronizer) drain(ctx context.Context) {
	entries := s.queue.Entries()
	if len(entries) == 0 {
		return
	}
	s.logger.Info("draining retry queue", zap.Int("entries", len(entries)))
	for _, e := range entries {
		if err := s.Retry(ctx, e.ChatID, e.ClientID); err != nil {
			s.logger.Warn("automatic retry failed",
				zap.String("client_id", e.ClientID), zap.Error(err))
		}
	}
}

// updateChatAfterSend refreshes the chat summary and increments unread counts
// for every participant who is neither the sender nor an active viewer.
// Failures here are logged, never surfaced: a delivered message with a stale
// summary beats a rejected send.
func (s *Synchronizer) updateChatAfterSend(ctx context.Context, msg *chat.Message) {
	meta, err := s.remote.ReadChatMeta(ctx, msg.ChatID)
	if err != nil || meta == nil {
		if local, lerr := s.db.GetChat(msg.ChatID); lerr == nil && local != nil {
			meta = local
		} else {
			s.logger.Warn("chat meta unavailable, skipping unread update",
				zap.String("chat_id", msg.ChatID), zap.Error(err))
			return
		}
	}

	now := time.Now().UnixMilli()
	increments := make(map[string]int)
	for _, p := range meta.Participants {
		if p == msg.SenderID {
			continue
		}
		if meta.IsActivelyViewing(p, now, s.cfg.ActiveViewerWindowMS) {
			continue
		}
		increments[p] = 1
	}

	s.mu.Lock()
	if meta.UnreadCounts == nil {
		meta.UnreadCounts = make(map[string]int)
	}
	for p := range increments {
		meta.UnreadCounts[p]++
	}
	meta.ID = msg.ChatID
	meta.LastMessage = msg.Text
	meta.LastMessageAt = msg.Timestamp
	if err := s.db.UpsertChat(meta); err != nil {
		s.logger.Warn("persist chat summary", zap.Error(err))
	}
	s.mu.Unlock()

	if err := s.remote.UpdateChatSummary(ctx, msg.ChatID, msg.Text, increments); err != nil {
		s.logger.Warn("push chat summary", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
	s.publish("chat.updated", map[string]any{"chat_id": msg.ChatID})
}

// MarkAsRead appends userID to the message's readBy set. Idempotent and
// best-effort: read receipts never block message delivery and never surface
// errors to the caller.
func (s *Synchronizer) MarkAsRead(ctx context.Context, chatID, messageID, userID string) {
	s.mu.Lock()
	msg, err := s.db.FindMessage(chatID, messageID)
	if err != nil || msg == nil {
		s.mu.Unlock()
		s.logger.Warn("mark-as-read lookup failed",
			zap.String("chat_id", chatID), zap.String("message_id", messageID), zap.Error(err))
		return
	}
	changed := msg.MarkRead(userID)
	if changed {
		if err := s.db.UpsertMessage(msg); err != nil {
			s.logger.Warn("persist read receipt", zap.Error(err))
		}
	}
	if c, err := s.db.GetChat(chatID); err == nil && c != nil {
		if c.UnreadCounts == nil {
			c.UnreadCounts = make(map[string]int)
		}
		if c.UnreadCounts[userID] != 0 {
			c.UnreadCounts[userID] = 0
			if err := s.db.UpsertChat(c); err != nil {
				s.logger.Warn("reset unread count", zap.Error(err))
			}
		}
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	s.publish("receipt.updated", map[string]any{
		"chat_id": chatID, "message_id": messageID, "user_id": userID,
	})
	if err := s.remote.UpdateReadReceipt(ctx, chatID, messageID, userID); err != nil {
		s.logger.Warn("push read receipt", zap.Error(err))
	}
}

// SetTyping records a typing signal. Best-effort, no-throw.
func (s *Synchronizer) SetTyping(ctx context.Context, chatID, userID string, typing bool) {
	s.mu.Lock()
	if c, err := s.db.GetChat(chatID); err == nil && c != nil {
		if c.Typing == nil {
			c.Typing = make(map[string]int64)
		}
		if typing {
			c.Typing[userID] = time.Now().UnixMilli()
		} else {
			delete(c.Typing, userID)
		}
		if err := s.db.UpsertChat(c); err != nil {
			s.logger.Warn("persist typing state", zap.Error(err))
		}
	}
	s.mu.Unlock()

	if err := s.remote.UpdateTyping(ctx, chatID, userID, typing); err != nil {
		s.logger.Warn("push typing state", zap.Error(err))
	}
}

// SetActivelyViewing records that userID is looking at the chat right now,
// suppressing unread increments for them within the viewer window.
// Best-effort, no-throw.
func (s *Synchronizer) SetActivelyViewing(ctx context.Context, chatID, userID string) {
	s.mu.Lock()
	if c, err := s.db.GetChat(chatID); err == nil && c != nil {
		if c.ActiveViewers == nil {
			c.ActiveViewers = make(map[string]int64)
		}
		c.ActiveViewers[userID] = time.Now().UnixMilli()
		if err := s.db.UpsertChat(c); err != nil {
			s.logger.Warn("persist viewer state", zap.Error(err))
		}
	}
	s.mu.Unlock()

	if err := s.remote.UpdatePresence(ctx, chatID, userID); err != nil {
		s.logger.Warn("push viewer state", zap.Error(err))
	}
}

// Messages returns the merged timeline for a chat.
func (s *Synchronizer) Messages(chatID string) ([]chat.Message, error) {
	return s.db.ListMessages(chatID)
}

// UnreadCount returns the unread count for one user in one chat.
func (s *Synchronizer) UnreadCount(chatID, userID string) (int, error) {
	c, err := s.db.GetChat(chatID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, nil
	}
	return c.UnreadCounts[userID], nil
}

// RetryQueueSize returns the number of messages pending resend.
func (s *Synchronizer) RetryQueueSize() int {
	return s.queue.Size()
}

func (s *Synchronizer) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
