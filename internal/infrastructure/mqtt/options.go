package mqtt

import (
	"crypto/tls"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/commlink/internal/infrastructure/config"
	"github.com/nerrad567/commlink/internal/notify"
)

// Connection constants.
const (
	// defaultOperationTimeout bounds waits on publish/subscribe acknowledgements.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// clientIDSuffixLen is the number of random hex characters appended to the client ID.
	clientIDSuffixLen = 6

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Notification durations.
const (
	successNotifyDuration = 2 * time.Second
	errorNotifyDuration   = 3 * time.Second
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
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

// withClientFactory replaces pahomqtt.NewClient. Used by tests.
func withClientFactory(f func(*pahomqtt.ClientOptions) pahomqtt.Client) Option {
	return func(c *Client) {
		if f != nil {
			c.newClient = f
		}
	}
}

// newClientID returns base_xxxxxx where x is random hex.
func newClientID(base string) string {
	return base + "_" + uuid.NewString()[:clientIDSuffixLen]
}

// buildClientOptions creates paho MQTT options from commlink config.
//
// This configures:
//   - Broker URL (tcp, ssl, ws or wss)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Periodic auto-reconnect at reconnect.period
//   - TLS minimum version for secure schemes
//   - Clean session mode
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.Broker.URL)
	opts.SetClientID(clientID)

	// Authentication (if credentials provided)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session - subscriptions are restored by the client, not the broker
	opts.SetCleanSession(true)

	// Fixed-period retry: initial and maximum interval are the same
	period := cfg.Reconnect.GetPeriod()
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(period)
	opts.SetMaxReconnectInterval(period)

	opts.SetConnectTimeout(cfg.Reconnect.GetConnectTimeout())
	opts.SetKeepAlive(defaultKeepAlive)

	if isSecureScheme(cfg.Broker.URL) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

func isSecureScheme(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "ssl", "tls", "mqtts", "wss":
		return true
	}
	return false
}
