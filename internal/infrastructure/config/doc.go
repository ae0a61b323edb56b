// Package config provides 12-factor configuration for the recorder.
//
// Configuration is loaded from environment variables with sensible defaults.
//
// Configuration Sections:
//   - Server: demo HTTP server settings (port, host)
//   - Recorder: service name, origin, missing-context policy, streaming
//   - Sampling: rules file or remote sampling endpoint
//   - Emitter: udp daemon, http collector, log or none
//   - Instrument: per-adapter toggles and SQL query collection
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	rec, err := recorder.FromConfig(cfg, logger, metrics)
//
// Environment Variables:
//   - PORT, HOST, LOG_LEVEL, LOG_DEV
//   - SEGTRACE_SERVICE_NAME, SEGTRACE_CONTEXT_MISSING, SEGTRACE_DISABLED
//   - SEGTRACE_SAMPLING_RULES, SEGTRACE_SAMPLING_ENDPOINT
//   - SEGTRACE_EMITTER, SEGTRACE_DAEMON_ADDRESS, SEGTRACE_COLLECTOR_URL
//   - SEGTRACE_COLLECT_SQL_QUERIES
package config
