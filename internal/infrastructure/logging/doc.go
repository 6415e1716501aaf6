// Package logging provides structured logging for the rpigarage agent.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same format and default fields.
//
// # Features
//
//   - JSON output for journald/log shipping (machine-parsable)
//   - Text output for bench work on the Pi (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	"logging": {
//	  "level": "info",
//	  "format": "json",
//	  "output": "stdout"
//	}
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("door opened", "thing", cfg.ThingName)
//
// Never log certificate contents, private keys or the InfluxDB token.
package logging
