package tracectx

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrEntityNotAvailable is returned under the Strict policy when an operation
// needs a current entity and the context has none.
var ErrEntityNotAvailable = errors.New("entity not available in trace context")

// Policy decides what happens when an entity is requested but none is set.
type Policy int

const (
	// LogOnly logs the condition and continues as a no-op. Default.
	LogOnly Policy = iota
	// Strict returns ErrEntityNotAvailable to the caller.
	Strict
	// Ignore continues silently.
	Ignore
)

// DefaultPolicy is used when configuration does not name one.
const DefaultPolicy = LogOnly

// String returns the string representation of the policy
func (p Policy) String() string {
	switch p {
	case LogOnly:
		return "LOG_ERROR"
	case Strict:
		return "RUNTIME_ERROR"
	case Ignore:
		return "IGNORE_ERROR"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts the recorder names (RUNTIME_ERROR, LOG_ERROR,
// IGNORE_ERROR) and short forms (strict, log, ignore), case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "log_error", "log", "logonly", "":
		return LogOnly, nil
	case "runtime_error", "strict":
		return Strict, nil
	case "ignore_error", "ignore":
		return Ignore, nil
	default:
		return DefaultPolicy, fmt.Errorf("unknown context missing policy %q", s)
	}
}

// Decode lets envconfig populate a Policy field.
func (p *Policy) Decode(value string) error {
	parsed, err := ParsePolicy(value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// HandleEntityMissing applies policy to a missing-entity condition described
// by msg. Only Strict returns an error.
func HandleEntityMissing(policy Policy, logger *zap.Logger, msg string) error {
	switch policy {
	case Strict:
		return fmt.Errorf("%s: %w", msg, ErrEntityNotAvailable)
	case Ignore:
		return nil
	default:
		if logger != nil {
			logger.Error("entity not available in trace context",
				zap.String("operation", msg),
				zap.String("policy", policy.String()),
			)
		}
		return nil
	}
}
