package header

import (
	"strings"
)

// Key is the HTTP header carrying the propagation string.
const Key = "X-Amzn-Trace-Id"

// MetadataKey is the gRPC metadata key carrying the propagation string.
// gRPC metadata keys are lowercase.
const MetadataKey = "x-amzn-trace-id"

const (
	rootKey    = "Root"
	parentKey  = "Parent"
	sampledKey = "Sampled"

	fieldSeparator = ";"
	keyValueSep    = "="
)

// SampleDecision is the sampling state carried by a trace header.
type SampleDecision int

const (
	Unknown SampleDecision = iota
	Requested
	Sampled
	NotSampled
)

// String returns the wire value for the decision; Unknown has none.
func (d SampleDecision) String() string {
	switch d {
	case Requested:
		return "?"
	case Sampled:
		return "1"
	case NotSampled:
		return "0"
	default:
		return ""
	}
}

// Resolved reports whether the decision is final (Sampled or NotSampled).
func (d SampleDecision) Resolved() bool {
	return d == Sampled || d == NotSampled
}

func parseDecision(s string) (SampleDecision, bool) {
	switch s {
	case "?":
		return Requested, true
	case "1":
		return Sampled, true
	case "0":
		return NotSampled, true
	default:
		return Unknown, false
	}
}

// TraceHeader is the parsed form of the propagation header.
type TraceHeader struct {
	RootTraceID string
	ParentID    string
	Sampled     SampleDecision
}

// Parse decodes a propagation header. Any malformed field fails the whole
// header; there is no partial result.
func Parse(text string) (TraceHeader, bool) {
	var h TraceHeader
	text = strings.TrimSpace(text)
	if text == "" {
		return h, false
	}

	var sawRoot, sawParent, sawSampled bool
	for _, token := range strings.Split(text, fieldSeparator) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		key, value, ok := strings.Cut(token, keyValueSep)
		if !ok {
			return TraceHeader{}, false
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case rootKey:
			if sawRoot || !ValidTraceID(value) {
				return TraceHeader{}, false
			}
			h.RootTraceID = value
			sawRoot = true
		case parentKey:
			if sawParent || !ValidEntityID(value) {
				return TraceHeader{}, false
			}
			h.ParentID = value
			sawParent = true
		case sampledKey:
			d, ok := parseDecision(value)
			if sawSampled || !ok {
				return TraceHeader{}, false
			}
			h.Sampled = d
			sawSampled = true
		default:
			// Self=, Lineage= and friends are added by load balancers.
		}
	}

	if !sawRoot {
		return TraceHeader{}, false
	}
	return h, true
}

// Format encodes h in canonical Root;Parent;Sampled order.
func Format(h TraceHeader) string {
	var b strings.Builder
	b.Grow(96)
	b.WriteString(rootKey)
	b.WriteString(keyValueSep)
	b.WriteString(h.RootTraceID)
	if h.ParentID != "" {
		b.WriteString(fieldSeparator)
		b.WriteString(parentKey)
		b.WriteString(keyValueSep)
		b.WriteString(h.ParentID)
	}
	if s := h.Sampled.String(); s != "" {
		b.WriteString(fieldSeparator)
		b.WriteString(sampledKey)
		b.WriteString(keyValueSep)
		b.WriteString(s)
	}
	return b.String()
}

// String implements fmt.Stringer.
func (h TraceHeader) String() string {
	return Format(h)
}

// Extract parses raw and falls back to a fresh header with an Unknown
// decision when raw is absent or malformed.
func Extract(raw string) (TraceHeader, bool) {
	if h, ok := Parse(raw); ok {
		return h, true
	}
	return Fresh(), false
}

// Fresh returns a header with a newly minted root and no parent.
func Fresh() TraceHeader {
	return TraceHeader{
		RootTraceID: NewTraceID(),
		Sampled:     Unknown,
	}
}
