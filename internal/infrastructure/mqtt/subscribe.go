package mqtt

import (
	"fmt"
	"slices"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe adds topic to the subscription set.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "home/feedback/+" matches every control ID
//   - # (multi-level): "home/status/#" matches every status path
//
// The topic is recorded even when disconnected and is subscribed on every
// (re)connect. When connected it is also subscribed immediately; a broker
// rejection is returned but the topic stays in the set.
func (c *Client) Subscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.subMu.Lock()
	c.subscriptions[topic] = struct{}{}
	c.subMu.Unlock()

	client, ok := c.connectedClient()
	if !ok {
		c.logger.Debug("MQTT subscription stored until connected", "topic", topic)
		return nil
	}

	if err := c.subscribeNow(client, topic); err != nil {
		c.logger.Warn("MQTT subscribe failed", "topic", topic, "error", err)
		return err
	}
	c.logger.Info("MQTT subscribed", "topic", topic)
	return nil
}

// subscribeNow issues a broker subscribe at the configured QoS.
func (c *Client) subscribeNow(client pahomqtt.Client, topic string) error {
	token := client.Subscribe(topic, c.qos(), c.handleMessage)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe removes topic from the subscription set and, when connected,
// from the broker.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	client, ok := c.connectedClient()
	if !ok {
		return nil
	}

	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrUnsubscribeFailed, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("MQTT unsubscribe failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	c.logger.Info("MQTT unsubscribed", "topic", topic)
	return nil
}

// Subscriptions returns the subscription set in sorted order.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.subMu.RUnlock()

	slices.Sort(topics)
	return topics
}

// HasSubscription checks if topic is in the subscription set.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}

func (c *Client) qos() byte {
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return 0
	}
	return byte(c.cfg.QoS)
}
