// Package mqtt provides the pub/sub channel for commlink.
//
// This package manages:
//   - Connection to an MQTT broker (tcp, ssl, ws or wss) with periodic auto-reconnect
//   - A subscription set that survives reconnects
//   - JSON publishing with QoS 0, 1 or 2
//   - Decoding inbound payloads as JSON
//   - User-facing notifications on connect, loss and setup failure
//
// # Architecture
//
// The broker carries per-control topics alongside the backend WebSocket:
//
//	{prefix}/controls/{component}/{id}  outbound control echoes
//	{prefix}/feedback/{id}              device feedback
//	{prefix}/status/{path...}           device and system status
//
// # Reconnection
//
// paho retries every reconnect.period without giving up. On every
// successful (re)connect the whole subscription set is re-subscribed before
// the Connected state is announced, so listeners never see Connected with
// missing subscriptions.
//
// Publishing while disconnected drops the message; nothing is queued.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, mqtt.WithLogger(logger), mqtt.WithNotifier(n))
//	client.OnMessage(func(topic string, payload any) {
//	    log.Printf("Received: %s = %v", topic, payload)
//	})
//	client.Subscribe(mqtt.Topics{Prefix: "home"}.AllFeedback())
//	client.Connect()
//	defer client.Disconnect()
package mqtt
