// Package logging provides structured logging for BridgeKit services.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Optional rotating log file (lumberjack) next to the console stream
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//	  file:
//	    path: "/var/log/bridgekit/bridgekit.log"
//	    max_size: 10     # megabytes
//	    max_backups: 5
//	    max_age: 30      # days
//	    compress: true
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Service.Name, "1.0.0")
//	defer logger.Close()
//	logger.Info("connected to broker", "broker", url)
//	logger.Error("failed to connect", "error", err)
//
// # Security
//
// Never log broker passwords or certificate pass phrases.
package logging
