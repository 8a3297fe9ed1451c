package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type classifies a Message.
type Type string

// Message types.
const (
	TypeControl  Type = "control"
	TypeUpdate   Type = "update"
	TypeFeedback Type = "feedback"
	TypeStatus   Type = "status"
)

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	switch t {
	case TypeControl, TypeUpdate, TypeFeedback, TypeStatus:
		return true
	}
	return false
}

// Component identifies the kind of widget a Message refers to.
type Component string

// Component kinds.
const (
	ComponentSlider  Component = "slider"
	ComponentButton  Component = "button"
	ComponentToggle  Component = "toggle"
	ComponentColor   Component = "color"
	ComponentText    Component = "text"
	ComponentNumber  Component = "number"
	ComponentGeneric Component = "generic-widget"
)

// Valid reports whether c is a known component kind.
func (c Component) Valid() bool {
	switch c {
	case ComponentSlider, ComponentButton, ComponentToggle, ComponentColor,
		ComponentText, ComponentNumber, ComponentGeneric:
		return true
	}
	return false
}

// ValidID reports whether id can name a control. IDs become a topic level
// on the pub/sub channel, so they must be non-empty and free of "/" and
// the MQTT wildcards.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#")
}

// Message is the unit of traffic on the generic channel.
//
// ID identifies a logical control and is stable across its lifetime.
// Value is opaque to the transport layer.
type Message struct {
	Type      Type      `json:"type"`
	Component Component `json:"component"`
	ID        string    `json:"id"`
	Value     any       `json:"value"`
	Timestamp int64     `json:"timestamp"`
}

// NewControl builds a control Message stamped with now.
func NewControl(component Component, id string, value any, now time.Time) Message {
	return Message{
		Type:      TypeControl,
		Component: component,
		ID:        id,
		Value:     value,
		Timestamp: now.UnixMilli(),
	}
}

// Encode serialises m for a single WebSocket frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return data, nil
}

// Decode parses a single frame into a Message.
// Only JSON syntax is checked; unknown types and components are kept so
// newer backends do not get their traffic dropped.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return m, nil
}

// NowMillis returns the current time in epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
