package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish JSON-encodes payload and sends it to topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "home/controls/slider/s1")
//   - payload: Any JSON-encodable value (max 1MB encoded)
//   - qos: Quality of Service level (0, 1, or 2)
//
// Topics containing + or # are rejected with ErrInvalidTopic; brokers close
// the connection on a wildcard publish.
//
// While disconnected the message is dropped with a warning and
// ErrNotConnected is returned. Nothing is queued.
//
// Example:
//
//	topic := mqtt.Topics{Prefix: "home"}.Controls("slider", "s1")
//	err := client.Publish(topic, message.ControlEcho{Value: 75, Timestamp: ts}, 0)
func (c *Client) Publish(topic string, payload any, qos byte) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if len(data) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(data), maxPayloadSize)
	}

	client, ok := c.connectedClient()
	if !ok {
		c.logger.Warn("MQTT not connected, message not sent", "topic", topic)
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, false, data)
	if !token.WaitTimeout(defaultOperationTimeout) {
		c.logger.Warn("MQTT publish timed out", "topic", topic)
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("MQTT publish failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
