package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for commlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	History   HistoryConfig   `yaml:"history"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WebSocketConfig contains the generic channel (WebSocket client) settings.
type WebSocketConfig struct {
	URL              string                   `yaml:"url"`
	HandshakeTimeout int                      `yaml:"handshake_timeout"` // seconds
	WriteTimeout     int                      `yaml:"write_timeout"`     // seconds
	MaxMessageSize   int                      `yaml:"max_message_size"`  // bytes, 0 = unlimited
	MaxQueue         int                      `yaml:"max_queue"`         // 0 = unbounded
	Reconnect        WebSocketReconnectConfig `yaml:"reconnect"`
}

// WebSocketReconnectConfig contains the exponential backoff policy.
type WebSocketReconnectConfig struct {
	BaseDelay   int `yaml:"base_delay"` // milliseconds
	MaxAttempts int `yaml:"max_attempts"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"` // subscription QoS
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"` // base; a random suffix is appended per session
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	Period         int `yaml:"period"`          // milliseconds between broker retries
	ConnectTimeout int `yaml:"connect_timeout"` // seconds
}

// HistoryConfig contains inbound message history settings.
type HistoryConfig struct {
	Size int `yaml:"size"`
}

// APIConfig contains the local HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Stream   StreamConfig     `yaml:"stream"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// StreamConfig contains settings for the API event stream WebSocket.
type StreamConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern COMMLINK_SECTION_KEY. The VITE_*
// names used by the browser build are accepted as a fallback.
//
// Parameters:
//   - path: Path to the YAML configuration file (optional)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set in the environment win.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		WebSocket: WebSocketConfig{
			URL:              "ws://localhost:8080",
			HandshakeTimeout: 10,
			WriteTimeout:     5,
			MaxMessageSize:   1 << 20,
			Reconnect: WebSocketReconnectConfig{
				BaseDelay:   1000,
				MaxAttempts: 5,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				URL:      "ws://localhost:9001",
				ClientID: "commlink",
			},
			QoS:         0,
			TopicPrefix: "commlink",
			Reconnect: MQTTReconnectConfig{
				Period:         1000,
				ConnectTimeout: 30,
			},
		},
		History: HistoryConfig{
			Size: 100,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Stream: StreamConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// WebSocket
	if v := firstEnv("COMMLINK_WEBSOCKET_URL", "VITE_WEBSOCKET_URL"); v != "" {
		cfg.WebSocket.URL = v
	}

	// MQTT
	if v := firstEnv("COMMLINK_MQTT_BROKER", "VITE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.URL = v
	}
	if v := firstEnv("COMMLINK_MQTT_CLIENT_ID", "VITE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := firstEnv("COMMLINK_MQTT_TOPIC_PREFIX", "VITE_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("COMMLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("COMMLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("COMMLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("COMMLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// firstEnv returns the value of the first non-empty environment variable.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// WebSocket validation
	if err := validateURL(c.WebSocket.URL, "ws", "wss"); err != nil {
		errs = append(errs, "websocket.url "+err.Error())
	}
	if c.WebSocket.Reconnect.BaseDelay <= 0 {
		errs = append(errs, "websocket.reconnect.base_delay must be positive")
	}
	if c.WebSocket.Reconnect.MaxAttempts < 0 {
		errs = append(errs, "websocket.reconnect.max_attempts cannot be negative")
	}
	if c.WebSocket.MaxQueue < 0 {
		errs = append(errs, "websocket.max_queue cannot be negative")
	}

	// MQTT validation
	if err := validateURL(c.MQTT.Broker.URL, "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss"); err != nil {
		errs = append(errs, "mqtt.broker.url "+err.Error())
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	} else if strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		errs = append(errs, "mqtt.topic_prefix cannot contain wildcards")
	}
	if c.MQTT.Reconnect.Period <= 0 {
		errs = append(errs, "mqtt.reconnect.period must be positive")
	}

	// History validation
	if c.History.Size < 1 {
		errs = append(errs, "history.size must be at least 1")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.API.Stream.PingInterval <= 0 || c.API.Stream.PongTimeout <= 0) {
		errs = append(errs, "api.stream ping_interval and pong_timeout must be positive")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateURL checks that raw parses and uses one of the allowed schemes.
func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is invalid: %w", err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not one of %s", u.Scheme, strings.Join(schemes, ", "))
}

// GetHandshakeTimeout returns the WebSocket handshake timeout as a Duration.
func (c WebSocketConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Second
}

// GetWriteTimeout returns the WebSocket write timeout as a Duration.
func (c WebSocketConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

// GetBaseDelay returns the reconnect base delay as a Duration.
func (c WebSocketReconnectConfig) GetBaseDelay() time.Duration {
	return time.Duration(c.BaseDelay) * time.Millisecond
}

// GetPeriod returns the broker retry period as a Duration.
func (c MQTTReconnectConfig) GetPeriod() time.Duration {
	return time.Duration(c.Period) * time.Millisecond
}

// GetConnectTimeout returns the broker connect timeout as a Duration.
func (c MQTTReconnectConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
