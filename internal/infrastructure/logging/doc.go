// Package logging provides structured logging for commlink.
//
// It wraps log/slog with JSON output for production, text output for
// development, level filtering and default service/version fields.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("websocket connected", "url", cfg.WebSocket.URL)
//
// Never log broker passwords or InfluxDB tokens.
package logging
