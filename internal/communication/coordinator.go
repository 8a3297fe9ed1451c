package communication

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/commlink/internal/event"
	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/infrastructure/logging"
	"github.com/nerrad567/commlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/commlink/internal/infrastructure/websocket"
	"github.com/nerrad567/commlink/internal/message"
	"github.com/nerrad567/commlink/internal/notify"
	"github.com/nerrad567/commlink/internal/transport"
)

// controlQoS is the QoS used for control echoes and Publish.
const controlQoS byte = 0

// GenericChannel is the session-oriented transport (WebSocket).
type GenericChannel interface {
	Connect()
	Disconnect()
	Send(msg message.Message)
	OnMessage(fn func(message.Message)) event.Subscription
	OnConnectionChange(fn func(transport.State)) event.Subscription
	IsConnected() bool
}

// PubSubChannel is the broker-mediated transport (MQTT).
type PubSubChannel interface {
	Connect()
	Disconnect()
	Subscribe(topic string) error
	Publish(topic string, payload any, qos byte) error
	OnMessage(fn func(topic string, payload any)) event.Subscription
	OnConnectionChange(fn func(transport.State)) event.Subscription
	IsConnected() bool
}

// ConnectionStatus is the aggregate view of both transports.
type ConnectionStatus struct {
	WebSocket      bool            `json:"websocket"`
	MQTT           bool            `json:"mqtt"`
	Full           bool            `json:"full"`
	WebSocketState transport.State `json:"websocket_state"`
	MQTTState      transport.State `json:"mqtt_state"`
}

// Deps holds the Coordinator's collaborators.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Notifier notify.Notifier

	// NewGeneric and NewPubSub build the transports. Nil uses the
	// websocket and mqtt packages.
	NewGeneric func(cfg config.WebSocketConfig, logger *logging.Logger, n notify.Notifier) GenericChannel
	NewPubSub  func(cfg config.MQTTConfig, logger *logging.Logger, n notify.Notifier) PubSubChannel

	// Now stamps outbound controls and feedback without a timestamp. Nil uses time.Now.
	Now func() time.Time
}

// Coordinator is the single composition point for both transports.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Bus listeners run on transport goroutines and should not block.
type Coordinator struct {
	cfg        *config.Config
	logger     *logging.Logger
	notifier   notify.Notifier
	newGeneric func(config.WebSocketConfig, *logging.Logger, notify.Notifier) GenericChannel
	newPubSub  func(config.MQTTConfig, *logging.Logger, notify.Notifier) PubSubChannel
	now        func() time.Time
	topics     mqtt.Topics
	bus        *Bus

	mu           sync.Mutex
	generic      GenericChannel
	pubsub       PubSubChannel
	wiring       event.Group
	genericState transport.State
	pubsubState  transport.State
	emitting     bool // a setState call is dispatching status events
	statusDirty  bool // status changed since the last dispatched event
	last         *message.Message
	history      *history
}

// New creates a Coordinator. Transports are not built until
// InitializeConnections.
func New(deps Deps) (*Coordinator, error) {
	if deps.Config == nil {
		return nil, errors.New("communication: config is required")
	}

	c := &Coordinator{
		cfg:        deps.Config,
		logger:     deps.Logger,
		notifier:   deps.Notifier,
		newGeneric: deps.NewGeneric,
		newPubSub:  deps.NewPubSub,
		now:        deps.Now,
		topics:     mqtt.Topics{Prefix: deps.Config.MQTT.TopicPrefix},
		history:    newHistory(deps.Config.History.Size),
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.newGeneric == nil {
		c.newGeneric = defaultGeneric
	}
	if c.newPubSub == nil {
		c.newPubSub = defaultPubSub
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.bus = newBus(func(r any) {
		c.logger.Error("event listener panic recovered", "panic", r)
	})

	return c, nil
}

func defaultGeneric(cfg config.WebSocketConfig, logger *logging.Logger, n notify.Notifier) GenericChannel {
	return websocket.New(cfg,
		websocket.WithLogger(logger.With("component", "websocket")),
		websocket.WithNotifier(n),
	)
}

func defaultPubSub(cfg config.MQTTConfig, logger *logging.Logger, n notify.Notifier) PubSubChannel {
	return mqtt.New(cfg,
		mqtt.WithLogger(logger.With("component", "mqtt")),
		mqtt.WithNotifier(n),
	)
}

// InitializeConnections builds both transports, wires their listeners,
// starts connecting, and subscribes to the feedback and status topics.
// Calling it again while initialised does nothing.
func (c *Coordinator) InitializeConnections() {
	c.mu.Lock()
	if c.generic != nil || c.pubsub != nil {
		c.mu.Unlock()
		c.logger.Warn("connections already initialised")
		return
	}
	generic := c.newGeneric(c.cfg.WebSocket, c.logger, c.notifier)
	pubsub := c.newPubSub(c.cfg.MQTT, c.logger, c.notifier)
	c.generic = generic
	c.pubsub = pubsub
	c.mu.Unlock()

	c.wiring.Add(generic.OnConnectionChange(func(s transport.State) {
		c.setState(func() { c.genericState = s })
	}))
	c.wiring.Add(generic.OnMessage(c.handleGenericMessage))

	c.wiring.Add(pubsub.OnConnectionChange(func(s transport.State) {
		c.setState(func() { c.pubsubState = s })
	}))
	c.wiring.Add(pubsub.OnMessage(c.handlePubSubMessage))

	c.logger.Info("initialising connections",
		"websocket_url", c.cfg.WebSocket.URL,
		"mqtt_broker", c.cfg.MQTT.Broker.URL,
		"topic_prefix", c.cfg.MQTT.TopicPrefix,
	)

	generic.Connect()
	pubsub.Connect()

	for _, topic := range []string{c.topics.AllFeedback(), c.topics.AllStatus()} {
		if err := pubsub.Subscribe(topic); err != nil {
			c.logger.Warn("subscribe failed", "topic", topic, "error", err)
		}
	}
}

// setState applies update under the lock and publishes the new aggregate.
//
// One caller at a time dispatches. Changes made while it is dispatching,
// from other goroutines or from its own listeners, are picked up by its
// loop, so the last event delivered always carries the current status.
func (c *Coordinator) setState(update func()) {
	c.mu.Lock()
	update()
	c.statusDirty = true
	if c.emitting {
		c.mu.Unlock()
		return
	}
	c.emitting = true
	for c.statusDirty {
		c.statusDirty = false
		status := c.statusLocked()
		c.mu.Unlock()

		c.bus.connection.Emit(status)

		c.mu.Lock()
	}
	c.emitting = false
	c.mu.Unlock()
}

// DisconnectAll closes both transports and marks both halves Disconnected.
func (c *Coordinator) DisconnectAll() {
	c.mu.Lock()
	generic, pubsub := c.generic, c.pubsub
	c.mu.Unlock()

	if generic != nil {
		generic.Disconnect()
	}
	if pubsub != nil {
		pubsub.Disconnect()
	}

	c.setState(func() {
		c.genericState = transport.Disconnected
		c.pubsubState = transport.Disconnected
	})
	c.logger.Info("all connections closed")
}

// SendControl builds a control message stamped now, sends it on the
// generic channel, and echoes {value, timestamp} to
// {prefix}/controls/{component}/{id} at QoS 0. The two sends are
// independent; either may fail without affecting the other. The echo is
// skipped when component or id cannot form a topic level.
func (c *Coordinator) SendControl(component message.Component, id string, value any) message.Message {
	msg := message.NewControl(component, id, value, c.now())

	c.SendMessage(msg)
	if !component.Valid() || !message.ValidID(id) {
		c.logger.Warn("control id not usable as topic, pub/sub echo skipped",
			"component", component,
			"id", id,
		)
		return msg
	}
	c.Publish(c.topics.Controls(string(component), id), message.ControlEcho{
		Value:     value,
		Timestamp: msg.Timestamp,
	})

	return msg
}

// SendMessage sends msg on the generic channel and records it in history.
// While the channel is down the message is queued by the transport.
func (c *Coordinator) SendMessage(msg message.Message) {
	c.mu.Lock()
	generic := c.generic
	if generic != nil {
		c.history.add(msg)
	}
	c.mu.Unlock()

	if generic == nil {
		c.logger.Warn("generic channel not initialised, message dropped", "id", msg.ID)
		return
	}
	generic.Send(msg)
}

// Publish sends payload to topic on the pub/sub channel at QoS 0.
// Failures, including being disconnected, are logged and dropped.
func (c *Coordinator) Publish(topic string, payload any) {
	c.mu.Lock()
	pubsub := c.pubsub
	c.mu.Unlock()

	if pubsub == nil {
		c.logger.Warn("pub/sub channel not initialised, publish dropped", "topic", topic)
		return
	}
	if err := pubsub.Publish(topic, payload, controlQoS); err != nil {
		c.logger.Debug("publish not delivered", "topic", topic, "error", err)
	}
}

func (c *Coordinator) handleGenericMessage(msg message.Message) {
	c.mu.Lock()
	last := msg
	c.last = &last
	c.history.add(msg)
	c.mu.Unlock()

	c.bus.messages.Emit(msg)
}

func (c *Coordinator) handlePubSubMessage(topic string, payload any) {
	parts := c.topics.Parse(topic)
	if len(parts) < 2 {
		c.logger.Debug("pub/sub message ignored", "topic", topic)
		return
	}

	value, ts := message.ValueAndTimestamp(payload, c.now().UnixMilli())

	switch parts[0] {
	case mqtt.CategoryFeedback:
		c.bus.feedback.Emit(message.Feedback{
			ID:        parts[1],
			Value:     value,
			Timestamp: ts,
		})
	case mqtt.CategoryStatus:
		c.bus.status.Emit(message.StatusUpdate{
			Path:      strings.Join(parts[1:], "/"),
			Value:     value,
			Timestamp: ts,
		})
	default:
		c.logger.Debug("pub/sub message ignored", "topic", topic)
	}
}

// Events returns the coordinator's event bus.
func (c *Coordinator) Events() *Bus {
	return c.bus
}

// Status returns the aggregate connection status.
func (c *Coordinator) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) statusLocked() ConnectionStatus {
	ws := c.genericState == transport.Connected
	mq := c.pubsubState == transport.Connected
	return ConnectionStatus{
		WebSocket:      ws,
		MQTT:           mq,
		Full:           ws && mq,
		WebSocketState: c.genericState,
		MQTTState:      c.pubsubState,
	}
}

// IsFullyConnected reports whether both transports are connected.
func (c *Coordinator) IsFullyConnected() bool {
	return c.Status().Full
}

// LastMessage returns the most recent generic-channel message received.
func (c *Coordinator) LastMessage() (message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return message.Message{}, false
	}
	return *c.last, true
}

// History returns a copy of recorded messages, newest first.
func (c *Coordinator) History() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.snapshot()
}

// ClearHistory empties the history. LastMessage is unaffected.
func (c *Coordinator) ClearHistory() {
	c.mu.Lock()
	c.history.clear()
	c.mu.Unlock()
}

// Close disconnects both transports and detaches the coordinator's
// listeners from them.
func (c *Coordinator) Close() {
	c.DisconnectAll()
	c.wiring.Unsubscribe()
}
