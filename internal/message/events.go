package message

import (
	"encoding/json"
	"fmt"
)

// Feedback is the decoded form of a {prefix}/feedback/{id} publication.
type Feedback struct {
	ID        string `json:"id"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// StatusUpdate is the decoded form of a {prefix}/status/... publication.
// Path is the topic remainder after "status/", e.g. "device/pump1".
type StatusUpdate struct {
	Path      string `json:"path"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// ControlEcho is the payload published on {prefix}/controls/{component}/{id}.
type ControlEcho struct {
	Value     any   `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// DecodePayload parses a pub/sub payload into a generic JSON value.
func DecodePayload(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, nil
}

// ValueAndTimestamp extracts the "value" and "timestamp" fields from a
// decoded payload. Non-object payloads are treated as the value itself.
// The timestamp falls back to fallback when absent or not numeric.
func ValueAndTimestamp(payload any, fallback int64) (any, int64) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return payload, fallback
	}

	ts := fallback
	if v, ok := obj["timestamp"].(float64); ok && v != 0 {
		ts = int64(v)
	}
	return obj["value"], ts
}
