// Package websocket provides the generic channel client: a single
// session-oriented WebSocket connection to the control backend.
//
// This package manages:
//   - Asynchronous connect with exponential backoff reconnection
//   - An outbound FIFO queue for messages sent while disconnected
//   - JSON framing of message.Message, one message per text frame
//   - Connection state and inbound message fan-out to listeners
//
// # Reconnection
//
// After an unexpected close the client waits base×2^n (n = attempts so far)
// and dials again. After the configured number of consecutive failures it
// raises one persistent notification and stays Disconnected until Connect
// is called again. Disconnect cancels any pending retry.
//
// # Ordering
//
// Frames are written in call order. Messages queued while disconnected are
// written, oldest first, on the next successful open and before any Send
// issued after that open.
//
// # Usage
//
//	client := websocket.New(cfg.WebSocket,
//	    websocket.WithLogger(log),
//	    websocket.WithNotifier(notifier),
//	)
//	client.OnMessage(func(m message.Message) { ... })
//	client.Connect()
//	defer client.Disconnect()
//
//	client.Send(message.NewControl(message.ComponentSlider, "s1", 75, time.Now()))
package websocket
