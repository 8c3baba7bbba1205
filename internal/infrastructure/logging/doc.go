// Package logging provides structured logging for the Thermolink binaries.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the node and the collector.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Size-rotated log files via lumberjack for unattended nodes
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/thermolink/node.log"
//	    max_size: 10     # megabytes
//	    max_backups: 3
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "thermolink", "1.0.0")
//	defer logger.Close()
//	logger.Info("sensor found", "address", "0x76")
package logging
