// Package server is the traced demo service.
//
// It wires configuration, logging, metrics and the recorder together and
// serves a small orders API whose requests, table calls and outbound
// proxy calls all show up as segments:
//
//	GET  /orders/:id   load an order (subsegments: load-order, orders@memory)
//	POST /orders       create an order
//	GET  /proxy?url=   fetch a URL, continuing the trace downstream
//	GET  /stats        recorder counters as JSON
//	GET  /metrics      Prometheus metrics
//
// When GRPC_PORT is set a gRPC health service runs alongside, traced by the
// grpctrace interceptors.
package server
