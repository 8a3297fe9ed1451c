package mqtt

import (
	"fmt"
	"strings"
)

// Topic categories under the configured prefix.
const (
	CategoryControls = "controls"
	CategoryFeedback = "feedback"
	CategoryStatus   = "status"
)

// Topics provides builders for commlink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "home"}
//	topics.Controls("slider", "s1")
//	// Returns: "home/controls/slider/s1"
type Topics struct {
	Prefix string
}

// Controls returns the topic a control change is echoed to.
//
// Example: home/controls/slider/s1
func (t Topics) Controls(component, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Prefix, CategoryControls, component, id)
}

// Feedback returns the topic a device reports the value of a control on.
//
// Example: home/feedback/slider1
func (t Topics) Feedback(id string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix, CategoryFeedback, id)
}

// Status returns a status topic for path.
//
// Example: home/status/device/pump1
func (t Topics) Status(path string) string {
	return fmt.Sprintf("%s/%s/%s", t.Prefix, CategoryStatus, path)
}

// AllFeedback returns a pattern matching all feedback topics.
//
// Pattern: home/feedback/#
func (t Topics) AllFeedback() string {
	return fmt.Sprintf("%s/%s/#", t.Prefix, CategoryFeedback)
}

// AllStatus returns a pattern matching all status topics.
//
// Pattern: home/status/#
func (t Topics) AllStatus() string {
	return fmt.Sprintf("%s/%s/#", t.Prefix, CategoryStatus)
}

// Parse strips the prefix from topic and splits the rest on "/".
// Topics outside the prefix are split whole.
//
// Example: Parse("home/feedback/slider1") returns ["feedback", "slider1"].
func (t Topics) Parse(topic string) []string {
	rest := strings.TrimPrefix(topic, t.Prefix+"/")
	return strings.Split(rest, "/")
}
