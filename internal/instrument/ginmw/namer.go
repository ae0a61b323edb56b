package ginmw

import (
	"net"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
)

// SegmentNamer picks the segment name for an inbound request.
type SegmentNamer interface {
	SegmentName(r *http.Request) string
}

// FixedNamer names every segment the same.
type FixedNamer string

func (n FixedNamer) SegmentName(*http.Request) string { return string(n) }

// HostNamer names segments after the request host when it matches Pattern,
// and Fallback otherwise. An empty Pattern accepts any host.
type HostNamer struct {
	Fallback string
	Pattern  string
}

// SegmentName returns the host without port, or the fallback.
func (n HostNamer) SegmentName(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return n.Fallback
	}
	if n.Pattern == "" {
		return host
	}
	if ok, err := doublestar.Match(n.Pattern, host); err == nil && ok {
		return host
	}
	return n.Fallback
}
