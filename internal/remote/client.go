package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reena96/messageai/internal/chat"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Options tunes the websocket client.
type Options struct {
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	RequestTimeout     time.Duration
}

func (o *Options) defaults() {
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = time.Second
	}
	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = 30 * time.Second
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 15 * time.Second
	}
}

type subscriber struct {
	onSnapshot func([]chat.Message)
	onError    func(error)
}

// Client implements Store over a websocket connection with automatic
// reconnection. Writes issued while disconnected fail fast with
// chat.ErrUnavailable so the engine can classify them as network failures
// instead of blocking.
type Client struct {
	url    string
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan envelope
	subs    map[string]*subscriber // chat id → subscriber
	closed  bool
	cancel  context.CancelFunc
}

// NewClient creates a client for the given websocket URL.
func NewClient(url string, opts Options, logger *zap.Logger) *Client {
	opts.defaults()
	return &Client{
		url:     url,
		opts:    opts,
		logger:  logger,
		pending: make(map[string]chan envelope),
		subs:    make(map[string]*subscriber),
	}
}

// Connect dials the server and starts the read/reconnect supervisor. It
// returns once the first dial settles; later disconnects are retried in the
// background with exponential backoff.
func (c *Client) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial remote store: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.supervise(ctx, conn)
	return nil
}

// Close tears the connection down and stops reconnecting.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

// supervise reads from conn until it fails, then redials until ctx is done.
func (c *Client) supervise(ctx context.Context, conn *websocket.Conn) {
	for {
		c.resubscribe(ctx)
		err := c.readLoop(ctx, conn)
		c.dropConn(err)
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		if c.logger != nil {
			c.logger.Warn("remote connection lost, reconnecting", zap.Error(err))
		}

		var next *websocket.Conn
		for attempt := 0; ; attempt++ {
			delay := c.backoff(attempt)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			redial, _, err := websocket.Dial(ctx, c.url, nil)
			if err == nil {
				next = redial
				break
			}
			if c.logger != nil {
				c.logger.Warn("redial failed", zap.Int("attempt", attempt+1), zap.Error(err))
			}
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = next.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		c.conn = next
		c.mu.Unlock()
		conn = next
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.opts.ReconnectBaseDelay) * math.Pow(2, float64(attempt)))
	if d > c.opts.ReconnectMaxDelay {
		d = c.opts.ReconnectMaxDelay
	}
	return d
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var env envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	if env.RequestID != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		if ok {
			delete(c.pending, env.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
		return
	}

	switch env.Type {
	case "snapshot":
		var p snapshotPayload
		if err := unmarshalPayload(env, &p); err != nil {
			if c.logger != nil {
				c.logger.Error("bad snapshot payload", zap.Error(err))
			}
			return
		}
		c.mu.Lock()
		sub := c.subs[p.ChatID]
		c.mu.Unlock()
		if sub == nil {
			return
		}
		msgs := make([]chat.Message, 0, len(p.Messages))
		for i := range p.Messages {
			msgs = append(msgs, p.Messages[i].toMessage(p.ChatID))
		}
		sub.onSnapshot(msgs)
	case "error":
		var p errorPayload
		_ = unmarshalPayload(env, &p)
		if c.logger != nil {
			c.logger.Warn("server error", zap.String("code", p.Code), zap.String("message", p.Message))
		}
	}
}

// dropConn marks the client disconnected and fails every pending request so
// callers see a classifiable network error instead of hanging.
func (c *Client) dropConn(cause error) {
	c.mu.Lock()
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan envelope)
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, s := range subs {
		if s.onError != nil {
			s.onError(fmt.Errorf("%w: %v", chat.ErrUnavailable, cause))
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// resubscribe replays subscribe commands for every tracked chat after a
// (re)connect so snapshot delivery resumes.
func (c *Client) resubscribe(ctx context.Context) {
	c.mu.Lock()
	chatIDs := make([]string, 0, len(c.subs))
	for id := range c.subs {
		chatIDs = append(chatIDs, id)
	}
	c.mu.Unlock()

	for _, chatID := range chatIDs {
		if err := c.fire(ctx, command{Type: "subscribe", Payload: subscribePayload{ChatID: chatID}}); err != nil && c.logger != nil {
			c.logger.Warn("resubscribe failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
}

// fire sends a command without waiting for a response.
func (c *Client) fire(ctx context.Context, cmd command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return chat.ErrUnavailable
	}
	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		return fmt.Errorf("%w: %v", chat.ErrUnavailable, err)
	}
	return nil
}

// request sends a command and waits for its correlated response envelope.
func (c *Client) request(ctx context.Context, cmd command) (envelope, error) {
	cmd.RequestID = uuid.New().String()
	ch := make(chan envelope, 1)

	c.mu.Lock()
	conn := c.conn
	if conn != nil {
		c.pending[cmd.RequestID] = ch
	}
	c.mu.Unlock()
	if conn == nil {
		return envelope{}, chat.ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		c.mu.Lock()
		delete(c.pending, cmd.RequestID)
		c.mu.Unlock()
		return envelope{}, fmt.Errorf("%w: %v", chat.ErrUnavailable, err)
	}

	select {
	case env, ok := <-ch:
		if !ok {
			// Connection dropped while waiting.
			return envelope{}, chat.ErrUnavailable
		}
		if env.Type == "error" {
			var p errorPayload
			_ = unmarshalPayload(env, &p)
			return envelope{}, codeToError(p)
		}
		return env, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, cmd.RequestID)
		c.mu.Unlock()
		return envelope{}, ctx.Err()
	}
}

// codeToError maps server error codes onto the engine's failure taxonomy.
func codeToError(p errorPayload) error {
	base := errors.New(p.Message)
	switch p.Code {
	case CodeUnavailable:
		return fmt.Errorf("%w: %s", chat.ErrUnavailable, p.Message)
	case CodePermissionDenied:
		return fmt.Errorf("%w: %s", chat.ErrPermissionDenied, p.Message)
	case CodeInvalidArgument:
		return fmt.Errorf("%w: %s", chat.ErrInvalidArgument, p.Message)
	}
	return base
}

// --- Store implementation ---

func (c *Client) SubscribeMessages(chatID string, onSnapshot func([]chat.Message), onError func(error)) (func(), error) {
	c.mu.Lock()
	c.subs[chatID] = &subscriber{onSnapshot: onSnapshot, onError: onError}
	c.mu.Unlock()

	// Best-effort: when offline the supervisor replays the subscribe on
	// reconnect, so a failed initial subscribe is not fatal.
	if err := c.fire(context.Background(), command{Type: "subscribe", Payload: subscribePayload{ChatID: chatID}}); err != nil && c.logger != nil {
		c.logger.Warn("subscribe deferred until reconnect", zap.String("chat_id", chatID), zap.Error(err))
	}

	return func() {
		c.mu.Lock()
		delete(c.subs, chatID)
		c.mu.Unlock()
		_ = c.fire(context.Background(), command{Type: "unsubscribe", Payload: subscribePayload{ChatID: chatID}})
	}, nil
}

func (c *Client) WriteMessage(ctx context.Context, chatID, senderID, text string) (string, error) {
	env, err := c.request(ctx, command{Type: "message.write", Payload: writePayload{
		ChatID: chatID, SenderID: senderID, Text: text,
	}})
	if err != nil {
		return "", err
	}
	var p ackPayload
	if err := unmarshalPayload(env, &p); err != nil {
		return "", err
	}
	return p.ServerID, nil
}

func (c *Client) UpdateChatSummary(ctx context.Context, chatID, lastMessage string, unreadIncrements map[string]int) error {
	_, err := c.request(ctx, command{Type: "chat.summary", Payload: summaryPayload{
		ChatID: chatID, LastMessage: lastMessage, UnreadIncrements: unreadIncrements,
	}})
	return err
}

func (c *Client) UpdateReadReceipt(ctx context.Context, chatID, messageID, userID string) error {
	return c.fire(ctx, command{Type: "receipt.update", Payload: receiptPayload{
		ChatID: chatID, MessageID: messageID, UserID: userID,
	}})
}

func (c *Client) UpdateTyping(ctx context.Context, chatID, userID string, typing bool) error {
	return c.fire(ctx, command{Type: "typing.update", Payload: typingPayload{
		ChatID: chatID, UserID: userID, IsTyping: typing,
	}})
}

func (c *Client) UpdatePresence(ctx context.Context, chatID, userID string) error {
	return c.fire(ctx, command{Type: "presence.update", Payload: presencePayload{
		ChatID: chatID, UserID: userID,
	}})
}

func (c *Client) ReadChatMeta(ctx context.Context, chatID string) (*chat.Chat, error) {
	env, err := c.request(ctx, command{Type: "chat.meta", Payload: subscribePayload{ChatID: chatID}})
	if err != nil {
		return nil, err
	}
	var p chatMetaPayload
	if err := unmarshalPayload(env, &p); err != nil {
		return nil, err
	}
	return p.toChat(), nil
}
