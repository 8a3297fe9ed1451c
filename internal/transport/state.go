// Package transport holds the connection state model shared by the
// generic channel and pub/sub channel clients.
package transport

// State is the connection state of a single transport.
type State int

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name so it reads well in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
