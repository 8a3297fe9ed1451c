package websocket

import "errors"

// Domain-specific errors for WebSocket operations.
var (
	// ErrWriteFailed is returned when a frame cannot be written to the socket.
	ErrWriteFailed = errors.New("websocket: write failed")
)
