// Package api implements the local HTTP API and event stream for commlink.
//
// This package provides:
//   - REST endpoints for connection status, message history and control sends
//   - WebSocket hub relaying coordinator events to UI clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API sits between a local UI and the communication coordinator.
// Controls posted over HTTP are handed to the coordinator, which sends them
// on the generic channel and echoes them to the pub/sub channel. Messages,
// feedback, status updates, connection changes and notifications flow back
// to stream clients on named channels:
//
//	message, feedback, status, connection, notification
//
// Stream clients subscribe per channel, either with a subscribe message or
// with the ?channels= query parameter on connect.
//
// # Graceful Degradation
//
// The API keeps serving while either transport is down. Sends are queued or
// dropped by the transports themselves; status reflects the outage.
package api
