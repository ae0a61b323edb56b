// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Recorder components take a *zap.Logger and default to a no-op logger, so
// the recorder is silent unless the host wires one in. ForEntity tags a
// logger with the trace id and entity id of the current segment.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.ForEntity(seg).Info("Handling request", zap.String("path", path))
package logging
