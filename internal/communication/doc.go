// Package communication composes the WebSocket and MQTT channels behind a
// single Coordinator.
//
// The Coordinator owns the aggregate connection status, the bounded
// history of generic-channel traffic, and the event Bus that UI-facing
// code listens on. Outbound control intents go to both transports:
//
//	coord.SendControl(message.ComponentSlider, "s1", 75)
//	// WebSocket: {"type":"control","component":"slider","id":"s1","value":75,"timestamp":T}
//	// MQTT:      home/controls/slider/s1 {"value":75,"timestamp":T} at QoS 0
//
// Inbound MQTT traffic under {prefix}/feedback/{id} and {prefix}/status/...
// is decoded into Feedback and StatusUpdate events. Everything else is
// logged only.
//
// Transport failures never surface as errors or panics from Coordinator
// methods; they show up as connection status changes and notifications.
package communication
