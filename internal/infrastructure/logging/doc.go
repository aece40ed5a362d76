// Package logging provides structured logging for the Lutron gateway.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the gateway.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Redaction of password, secret, token and key attributes
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path (appended, mode 0600)
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	bridgeLog := logger.ForBridge("0A1B2C3D", "lutron")
//	bridgeLog.Info("connected", "address", "192.168.1.40")
//
// The *slog.Logger embedded in Logger satisfies the lutron engine's Logger
// interface, so a bridge logger can be handed straight to an engine.
//
// # Security
//
// Never log bridge private keys or Telnet passwords. Attributes with a
// secret-looking key are replaced with [REDACTED] as a backstop.
package logging
