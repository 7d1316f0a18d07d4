// Package logging provides structured logging for the inkblue daemon.
//
// It wraps log/slog so every component logs through the same handler with
// consistent default fields (service, version). JSON output for the device
// journal, text output for development.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components take a narrow Logger interface of their own and receive a
// *logging.Logger (or a derived .With(...) logger) at wiring time.
package logging
