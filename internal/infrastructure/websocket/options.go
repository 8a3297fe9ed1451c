package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/nerrad567/commlink/internal/notify"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Scheduler runs f once after d and returns a function that cancels it.
// The cancel function reports whether f was prevented from running.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

// afterFunc is the default Scheduler backed by time.AfterFunc.
func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Without one, logging is discarded.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier sets the user-facing notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithScheduler replaces the reconnect timer implementation.
func WithScheduler(s Scheduler) Option {
	return func(c *Client) {
		if s != nil {
			c.schedule = s
		}
	}
}

// WithHeader sets extra HTTP headers sent with the handshake.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h.Clone()
	}
}

// WithDialer replaces the gorilla dialer, e.g. to set TLS options.
func WithDialer(d *gorillaws.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
