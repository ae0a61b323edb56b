// Package main runs the segtrace demo service.
//
// Every request is recorded as a segment and handed to the configured
// emitter, by default the local daemon over UDP.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Send segments to a daemon on 127.0.0.1:2000
//	./server -port 8000
//
//	# Print segments to the console instead
//	./server -emitter log -dev
//
//	# Sample with local rules
//	SEGTRACE_SAMPLING_RULES=rules.yaml ./server
//
// Signals:
//   - SIGINT, SIGTERM: stop serving, then drain queued segments
package main
