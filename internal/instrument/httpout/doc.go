// Package httpout traces outbound HTTP calls.
//
// Each call becomes a "remote" subsegment named after the target host, and
// the X-Amzn-Trace-Id header is set so the downstream service continues the
// trace. Use Client for net/http callers and Resty for resty clients; either
// way the request context must carry the current entity.
package httpout
