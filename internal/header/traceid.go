package header

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/segtrace/internal/shared/id"
)

const (
	traceIDVersion = "1"
	epochHexLen    = 8
	randomHexLen   = 24
	entityIDHexLen = 16
)

// NewTraceID mints a root trace id for the current time.
func NewTraceID() string {
	return NewTraceIDAt(time.Now())
}

// NewTraceIDAt mints a root trace id with the given start time.
func NewTraceIDAt(t time.Time) string {
	return fmt.Sprintf("%s-%08x-%s", traceIDVersion, uint32(t.Unix()), id.Default().RandomHex(randomHexLen/2))
}

// ValidTraceID reports whether s has the form 1-<8 hex>-<24 hex>.
func ValidTraceID(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return false
	}
	return parts[0] == traceIDVersion &&
		isHex(parts[1], epochHexLen) &&
		isHex(parts[2], randomHexLen)
}

// ValidEntityID reports whether s is a 16 digit hex segment id.
func ValidEntityID(s string) bool {
	return isHex(s, entityIDHexLen)
}

// TraceIDTime returns the start time encoded in a trace id.
func TraceIDTime(traceID string) (time.Time, bool) {
	if !ValidTraceID(traceID) {
		return time.Time{}, false
	}
	secs, err := strconv.ParseUint(traceID[2:2+epochHexLen], 16, 32)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(secs), 0), true
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
