package mqtt

import (
	"slices"
	"testing"
)

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Controls", topics.Controls("slider", "s1"), "home/controls/slider/s1"},
		{"Feedback", topics.Feedback("slider1"), "home/feedback/slider1"},
		{"Status", topics.Status("device/pump1"), "home/status/device/pump1"},
		{"AllFeedback", topics.AllFeedback(), "home/feedback/#"},
		{"AllStatus", topics.AllStatus(), "home/status/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestTopicsParse(t *testing.T) {
	topics := Topics{Prefix: "home"}

	tests := []struct {
		topic string
		want  []string
	}{
		{"home/feedback/slider1", []string{"feedback", "slider1"}},
		{"home/status/device/pump1", []string{"status", "device", "pump1"}},
		{"home/feedback", []string{"feedback"}},
		{"other/feedback/x", []string{"other", "feedback", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := topics.Parse(tt.topic); !slices.Equal(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}
