package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/nerrad567/commlink/internal/event"
	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/message"
	"github.com/nerrad567/commlink/internal/notify"
	"github.com/nerrad567/commlink/internal/transport"
)

// Notification durations.
const (
	successNotifyDuration = 2 * time.Second
	errorNotifyDuration   = 3 * time.Second

	// closeGracePeriod bounds the close frame write on Disconnect.
	closeGracePeriod = time.Second
)

// Client owns one WebSocket connection to the control backend.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Listeners are called from the client's internal goroutines and must
//     not block for long.
type Client struct {
	cfg         config.WebSocketConfig
	dialer      *gorillaws.Dialer
	header      http.Header
	logger      Logger
	notifier    notify.Notifier
	schedule    Scheduler
	baseDelay   time.Duration
	maxAttempts int

	// writeMu serialises frame writes. Lock order: writeMu before mu.
	writeMu sync.Mutex

	mu         sync.Mutex
	state      transport.State
	conn       *gorillaws.Conn
	epoch      uint64 // bumped on every connect and Disconnect; stale callbacks compare against it
	attempts   int
	exhausted  bool
	cancelDial context.CancelFunc
	cancelWait func() bool
	queue      []message.Message

	messages    event.Listeners[message.Message]
	stateChange event.Listeners[transport.State]
}

// New creates a disconnected Client for cfg.URL. Call Connect to open it.
func New(cfg config.WebSocketConfig, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		dialer: &gorillaws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.GetHandshakeTimeout(),
		},
		logger:      nopLogger{},
		notifier:    notify.Discard,
		schedule:    afterFunc,
		baseDelay:   cfg.Reconnect.GetBaseDelay(),
		maxAttempts: cfg.Reconnect.MaxAttempts,
	}

	for _, opt := range opts {
		opt(c)
	}

	onPanic := func(r any) {
		c.logger.Error("websocket listener panic recovered", "panic", r)
	}
	c.messages.SetPanicHandler(onPanic)
	c.stateChange.SetPanicHandler(onPanic)

	return c
}

// Connect opens the connection unless it is already open or opening.
// The dial runs in the background; observe the result with OnConnectionChange.
// Calling Connect from Disconnected starts a fresh retry budget.
func (c *Client) Connect() {
	c.connect(true)
}

func (c *Client) connect(explicit bool) {
	c.mu.Lock()
	if c.state != transport.Disconnected {
		c.mu.Unlock()
		return
	}
	if explicit {
		c.attempts = 0
		c.exhausted = false
	}
	c.stopRetryLocked()
	c.epoch++
	epoch := c.epoch
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.state = transport.Connecting
	c.mu.Unlock()

	c.logger.Debug("websocket connecting", "url", c.cfg.URL)
	c.stateChange.Emit(transport.Connecting)

	go c.dial(ctx, epoch)
}

// dial performs the handshake and, on success, promotes the connection.
func (c *Client) dial(ctx context.Context, epoch uint64) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	if err != nil {
		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		c.releaseDialLocked()
		c.state = transport.Disconnected
		c.mu.Unlock()

		c.logger.Warn("websocket connect failed", "url", c.cfg.URL, "error", err)
		c.notifyError()
		c.stateChange.Emit(transport.Disconnected)
		c.scheduleReconnect(epoch)
		return
	}

	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	}

	// Hold writeMu across promotion and flush so no later Send can overtake
	// the queued messages.
	c.writeMu.Lock()
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.writeMu.Unlock()
		conn.Close()
		return
	}
	c.releaseDialLocked()
	c.conn = conn
	c.state = transport.Connected
	c.attempts = 0
	c.exhausted = false
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	flushed := c.flushLocked(conn, queued)
	c.writeMu.Unlock()

	c.logger.Info("websocket connected", "url", c.cfg.URL, "flushed", flushed)
	c.stateChange.Emit(transport.Connected)
	c.notifier.Notify(notify.Notification{
		Title:    "WebSocket Connected",
		Message:  "Successfully connected to backend",
		Severity: notify.SeveritySuccess,
		Duration: successNotifyDuration,
	})

	go c.readLoop(conn, epoch)
}

// flushLocked writes queued messages in order. On the first write failure
// the unsent remainder goes back to the front of the queue and the
// connection is dropped. Caller must hold writeMu.
func (c *Client) flushLocked(conn *gorillaws.Conn, queued []message.Message) int {
	for i, msg := range queued {
		if err := c.writeLocked(conn, msg); err != nil {
			c.logger.Warn("websocket flush interrupted", "sent", i, "remaining", len(queued)-i, "error", err)
			c.abandonLocked(conn, queued[i:])
			return i
		}
	}
	return len(queued)
}

// abandonLocked puts unsent messages back at the front of the queue and
// closes a connection that failed a write. The read loop then sees the
// close and schedules a reconnect. Caller must hold writeMu.
func (c *Client) abandonLocked(conn *gorillaws.Conn, unsent []message.Message) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.queue = append(append([]message.Message(nil), unsent...), c.queue...)
	c.trimQueueLocked()
	c.mu.Unlock()
	conn.Close()
}

// Disconnect closes the connection and cancels any pending reconnect.
// The outbound queue is kept for the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.epoch++
	c.stopRetryLocked()
	c.releaseDialLocked()
	conn := c.conn
	c.conn = nil
	prev := c.state
	c.state = transport.Disconnected
	c.attempts = 0
	c.exhausted = false
	c.mu.Unlock()

	if conn != nil {
		//nolint:errcheck // Best-effort close frame
		conn.WriteControl(
			gorillaws.CloseMessage,
			gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		conn.Close()
	}

	if prev != transport.Disconnected {
		c.logger.Info("websocket disconnected", "url", c.cfg.URL)
		c.stateChange.Emit(transport.Disconnected)
	}
}

// Send transmits msg now if connected, otherwise queues it for the next
// successful connection. Delivery outcome is not reported to the caller.
// A failed write keeps msg at the head of the queue and drops the
// connection so it is re-established.
func (c *Client) Send(msg message.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	if c.state != transport.Connected || conn == nil {
		c.enqueueLocked(msg)
		queued := len(c.queue)
		c.mu.Unlock()
		c.logger.Warn("websocket not connected, message queued", "id", msg.ID, "queued", queued)
		return
	}
	c.mu.Unlock()

	if err := c.writeLocked(conn, msg); err != nil {
		c.logger.Warn("websocket send failed, message queued", "id", msg.ID, "error", err)
		c.abandonLocked(conn, []message.Message{msg})
	}
}

// writeLocked encodes and writes one frame. Caller must hold writeMu.
// Encoding failures are logged and the message dropped; only transport
// errors are returned.
func (c *Client) writeLocked(conn *gorillaws.Conn, msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		c.logger.Error("dropping unencodable message", "id", msg.ID, "error", err)
		return nil
	}

	if timeout := c.cfg.GetWriteTimeout(); timeout > 0 {
		//nolint:errcheck // Best-effort deadline; write error caught below
		conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// enqueueLocked appends msg, dropping the oldest entry when a cap is set.
// Caller must hold mu.
func (c *Client) enqueueLocked(msg message.Message) {
	c.queue = append(c.queue, msg)
	c.trimQueueLocked()
}

// trimQueueLocked drops the oldest entries beyond MaxQueue. Caller must hold mu.
func (c *Client) trimQueueLocked() {
	if c.cfg.MaxQueue <= 0 {
		return
	}
	for len(c.queue) > c.cfg.MaxQueue {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		c.logger.Warn("websocket queue full, dropped oldest message", "id", dropped.ID, "max_queue", c.cfg.MaxQueue)
	}
}

// readLoop delivers inbound frames until the connection fails.
func (c *Client) readLoop(conn *gorillaws.Conn, epoch uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, epoch, err)
			return
		}

		msg, err := message.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed websocket message", "error", err, "size", len(data))
			continue
		}
		c.messages.Emit(msg)
	}
}

// handleClose moves to Disconnected and schedules a retry, unless the
// connection was already superseded by Disconnect or a newer connect.
func (c *Client) handleClose(conn *gorillaws.Conn, epoch uint64, cause error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = transport.Disconnected
	c.mu.Unlock()

	conn.Close()

	if gorillaws.IsCloseError(cause, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
		c.logger.Info("websocket closed by server", "reason", cause)
	} else {
		c.logger.Warn("websocket connection lost", "error", cause)
		c.notifyError()
	}
	c.stateChange.Emit(transport.Disconnected)
	c.scheduleReconnect(epoch)
}

// scheduleReconnect arms the next backoff timer or, when the attempt budget
// is spent, raises the terminal notification once.
func (c *Client) scheduleReconnect(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != transport.Disconnected {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.maxAttempts {
		already := c.exhausted
		c.exhausted = true
		c.mu.Unlock()

		if !already {
			c.logger.Error("websocket max reconnection attempts reached", "attempts", c.maxAttempts)
			c.notifier.Notify(notify.Notification{
				Title:    "Connection Failed",
				Message:  "Could not connect to WebSocket server",
				Severity: notify.SeverityError,
				Duration: notify.Persistent,
			})
		}
		return
	}

	delay := Backoff(c.baseDelay, c.attempts)
	c.attempts++
	attempt := c.attempts
	c.cancelWait = c.schedule(delay, func() { c.retry(epoch) })
	c.mu.Unlock()

	c.logger.Info("websocket reconnecting",
		"delay_ms", delay.Milliseconds(),
		"attempt", attempt,
		"max_attempts", c.maxAttempts,
	)
}

// retry is the timer callback for a scheduled reconnect.
func (c *Client) retry(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.cancelWait = nil
	c.mu.Unlock()

	c.connect(false)
}

// stopRetryLocked cancels a pending reconnect timer. Caller must hold mu.
func (c *Client) stopRetryLocked() {
	if c.cancelWait != nil {
		c.cancelWait()
		c.cancelWait = nil
	}
}

// releaseDialLocked cancels the dial context. Caller must hold mu.
func (c *Client) releaseDialLocked() {
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
}

func (c *Client) notifyError() {
	c.notifier.Notify(notify.Notification{
		Title:    "WebSocket Error",
		Message:  "Connection error occurred",
		Severity: notify.SeverityError,
		Duration: errorNotifyDuration,
	})
}

// OnMessage registers a listener for inbound messages.
func (c *Client) OnMessage(fn func(message.Message)) event.Subscription {
	return c.messages.Add(fn)
}

// OnConnectionChange registers a listener for state transitions.
func (c *Client) OnConnectionChange(fn func(transport.State)) event.Subscription {
	return c.stateChange.Add(fn)
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	return c.State() == transport.Connected
}

// State returns the current connection state.
func (c *Client) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the number of messages waiting for a connection.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Backoff returns base×2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt) //nolint:gosec // attempt is bounded by max_attempts
}
