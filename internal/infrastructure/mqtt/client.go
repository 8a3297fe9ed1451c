package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/commlink/internal/event"
	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/message"
	"github.com/nerrad567/commlink/internal/notify"
	"github.com/nerrad567/commlink/internal/transport"
)

// Client wraps paho.mqtt.golang as the pub/sub channel.
//
// It owns the subscription set, restores it after every reconnect, and
// decodes inbound payloads as JSON before handing them to listeners.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Listeners run on paho's goroutines and should not block.
type Client struct {
	cfg       config.MQTTConfig
	logger    Logger
	notifier  notify.Notifier
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu       sync.Mutex
	client   pahomqtt.Client
	clientID string
	state    transport.State
	gen      uint64        // bumped on every Connect and Disconnect
	stop     chan struct{} // closed by Disconnect to release awaitConnect

	// subscriptions is the desired topic set, restored on reconnect.
	subscriptions map[string]struct{}
	subMu         sync.RWMutex

	// opMu serialises set changes and their live broker calls with the
	// restore pass in handleConnect, so the broker never diverges from the set.
	opMu sync.Mutex

	messages    event.Listeners[Inbound]
	stateChange event.Listeners[transport.State]
}

// Inbound is a decoded message received on a subscribed topic.
type Inbound struct {
	Topic   string
	Payload any
}

// New creates a disconnected Client. Call Connect to open it.
func New(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		cfg:           cfg,
		logger:        nopLogger{},
		notifier:      notify.Discard,
		newClient:     pahomqtt.NewClient,
		subscriptions: make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	onPanic := func(r any) {
		c.logger.Error("MQTT listener panic recovered", "panic", r)
	}
	c.messages.SetPanicHandler(onPanic)
	c.stateChange.SetPanicHandler(onPanic)

	return c
}

// Connect starts connecting to the broker in the background.
//
// paho retries every reconnect.period until the broker is reachable and
// reconnects the same way after a lost connection. Calling Connect while a
// session exists (connecting, connected or auto-reconnecting) does nothing.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.clientID = newClientID(c.cfg.Broker.ClientID)

	opts := buildClientOptions(c.cfg, c.clientID)
	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		c.handleConnect(pc, gen)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(gen, err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting(gen)
	})
	opts.SetDefaultPublishHandler(c.handleMessage)

	client := c.newClient(opts)
	c.client = client
	c.state = transport.Connecting
	c.stop = make(chan struct{})
	stop := c.stop
	clientID := c.clientID
	c.mu.Unlock()

	c.logger.Info("MQTT connecting", "broker", c.cfg.Broker.URL, "client_id", clientID)
	c.stateChange.Emit(transport.Connecting)

	token := client.Connect()
	go c.awaitConnect(token, gen, stop)
}

// awaitConnect reports a connect token that fails outright. With
// ConnectRetry enabled the token only errors on unusable options or when
// Disconnect aborts the retry loop.
func (c *Client) awaitConnect(token pahomqtt.Token, gen uint64, stop <-chan struct{}) {
	select {
	case <-token.Done():
	case <-stop:
		return
	}
	err := token.Error()
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = transport.Disconnected
	c.client = nil
	c.mu.Unlock()

	c.logger.Error("MQTT connection failed", "broker", c.cfg.Broker.URL, "error", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	c.notifier.Notify(notify.Notification{
		Title:    "MQTT Connection Failed",
		Message:  "Could not connect to MQTT broker",
		Severity: notify.SeverityError,
		Duration: notify.Persistent,
	})
	c.stateChange.Emit(transport.Disconnected)
}

// handleConnect runs on initial connect and every reconnect.
// Subscriptions are restored before Connected is announced. Subscribe and
// Unsubscribe wait for the restore pass, then see the Connected state and
// apply their change to the broker directly.
func (c *Client) handleConnect(pc pahomqtt.Client, gen uint64) {
	c.opMu.Lock()
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.opMu.Unlock()
		return
	}
	c.mu.Unlock()

	c.restoreSubscriptions(pc)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.opMu.Unlock()
		return
	}
	c.state = transport.Connected
	c.mu.Unlock()
	c.opMu.Unlock()

	c.logger.Info("MQTT connected", "broker", c.cfg.Broker.URL)
	c.stateChange.Emit(transport.Connected)
	c.notifier.Notify(notify.Notification{
		Title:    "MQTT Connected",
		Message:  "Successfully connected to MQTT broker",
		Severity: notify.SeveritySuccess,
		Duration: successNotifyDuration,
	})
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = transport.Disconnected
	c.mu.Unlock()

	c.logger.Warn("MQTT connection lost", "error", err)
	c.notifier.Notify(notify.Notification{
		Title:    "MQTT Error",
		Message:  "Connection error occurred",
		Severity: notify.SeverityError,
		Duration: errorNotifyDuration,
	})
	c.stateChange.Emit(transport.Disconnected)
}

// handleReconnecting is called by paho before each reconnect attempt.
func (c *Client) handleReconnecting(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state == transport.Connecting {
		c.mu.Unlock()
		return
	}
	c.state = transport.Connecting
	c.mu.Unlock()

	c.logger.Info("MQTT reconnecting", "broker", c.cfg.Broker.URL)
	c.stateChange.Emit(transport.Connecting)
}

// restoreSubscriptions re-subscribes to all tracked topics after (re)connect.
func (c *Client) restoreSubscriptions(pc pahomqtt.Client) {
	for _, topic := range c.Subscriptions() {
		if err := c.subscribeNow(pc, topic); err != nil {
			c.logger.Warn("MQTT resubscribe failed", "topic", topic, "error", err)
		}
	}
}

// handleMessage decodes a payload and delivers it to listeners.
// Payloads that are not JSON are dropped.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload, err := message.DecodePayload(msg.Payload())
	if err != nil {
		c.logger.Warn("dropping malformed MQTT message", "topic", msg.Topic(), "error", err)
		return
	}
	c.logger.Debug("MQTT message received", "topic", msg.Topic())
	c.messages.Emit(Inbound{Topic: msg.Topic(), Payload: payload})
}

// Disconnect closes the broker connection and stops reconnecting.
// The subscription set is kept for the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	client := c.client
	c.client = nil
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	prev := c.state
	c.state = transport.Disconnected
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(defaultDisconnectQuiesce)
	}

	if prev != transport.Disconnected {
		c.logger.Info("MQTT disconnected", "broker", c.cfg.Broker.URL)
		c.stateChange.Emit(transport.Disconnected)
	}
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.State() == transport.Connected
}

// State returns the current connection state.
func (c *Client) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClientID returns the client ID used for the current session, or "" before
// the first Connect.
func (c *Client) ClientID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// OnMessage registers a listener for decoded inbound messages.
func (c *Client) OnMessage(fn func(topic string, payload any)) event.Subscription {
	if fn == nil {
		return c.messages.Add(nil)
	}
	return c.messages.Add(func(in Inbound) { fn(in.Topic, in.Payload) })
}

// OnConnectionChange registers a listener for state transitions.
func (c *Client) OnConnectionChange(fn func(transport.State)) event.Subscription {
	return c.stateChange.Add(fn)
}

// connectedClient returns the paho client when connected.
func (c *Client) connectedClient() (pahomqtt.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transport.Connected || c.client == nil {
		return nil, false
	}
	return c.client, true
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
