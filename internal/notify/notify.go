package notify

import (
	"time"

	"github.com/nerrad567/commlink/internal/infrastructure/logging"
)

// Severity is the visual weight of a Notification.
type Severity string

// Severities.
const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Persistent is the Duration for notifications that must be dismissed by the user.
const Persistent time.Duration = 0

// Notification is a single user-facing message.
type Notification struct {
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Duration time.Duration `json:"duration"` // Persistent (0) means no auto-dismiss
}

// IsPersistent reports whether n should stay until dismissed.
func (n Notification) IsPersistent() bool {
	return n.Duration == Persistent
}

// Notifier delivers notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to Notifier.
type Func func(n Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify delivers n to every non-nil notifier.
func (m Multi) Notify(n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// LogNotifier writes notifications to the structured log.
// Error severity is logged at error level, everything else at info.
type LogNotifier struct {
	Logger *logging.Logger
}

// Notify logs n.
func (l LogNotifier) Notify(n Notification) {
	if l.Logger == nil {
		return
	}
	args := []any{
		"title", n.Title,
		"message", n.Message,
		"severity", string(n.Severity),
		"persistent", n.IsPersistent(),
	}
	if n.Severity == SeverityError {
		l.Logger.Error("notification", args...)
		return
	}
	l.Logger.Info("notification", args...)
}
