//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/transport"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			URL:      "tcp://127.0.0.1:1883",
			ClientID: "commlink-int",
		},
		QoS:         1,
		TopicPrefix: "commlink-int",
		Reconnect: config.MQTTReconnectConfig{
			Period:         1000,
			ConnectTimeout: 5,
		},
	}
}

// connectAndWait connects c and blocks until it reports Connected.
func connectAndWait(t *testing.T, c *Client) {
	t.Helper()

	up := make(chan struct{})
	var once sync.Once
	sub := c.OnConnectionChange(func(s transport.State) {
		if s == transport.Connected {
			once.Do(func() { close(up) })
		}
	})
	defer sub.Unsubscribe()

	c.Connect()

	select {
	case <-up:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for broker connection")
	}
}

// TestIntegration_MessageRoundtrip verifies pub/sub works end-to-end,
// including JSON decoding of the received payload.
func TestIntegration_MessageRoundtrip(t *testing.T) {
	cfg := integrationConfig()
	topics := Topics{Prefix: cfg.TopicPrefix}

	sub := New(cfg)
	defer sub.Disconnect()
	if err := sub.Subscribe(topics.AllFeedback()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	received := make(chan any, 1)
	var once sync.Once
	sub.OnMessage(func(_ string, payload any) {
		once.Do(func() { received <- payload })
	})
	connectAndWait(t, sub)

	pub := New(cfg)
	defer pub.Disconnect()
	connectAndWait(t, pub)

	if err := pub.Publish(topics.Feedback("slider1"), map[string]any{"value": 42}, 1); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		obj, ok := payload.(map[string]any)
		if !ok || obj["value"] != float64(42) {
			t.Errorf("received payload = %#v", payload)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

// TestIntegration_SubscriptionTracking verifies the subscription set
// against a live broker.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	c := New(integrationConfig())
	defer c.Disconnect()
	connectAndWait(t, c)

	topics := []string{
		"commlink-int/test/topic1",
		"commlink-int/test/topic2",
		"commlink-int/test/topic3",
	}
	for _, topic := range topics {
		if err := c.Subscribe(topic); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}

	if len(c.Subscriptions()) != len(topics) {
		t.Errorf("Subscriptions() = %v, want %d topics", c.Subscriptions(), len(topics))
	}

	if err := c.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}
