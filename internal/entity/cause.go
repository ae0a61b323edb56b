package entity

import (
	"errors"
	"fmt"
	"os"

	"github.com/GriffinCanCode/segtrace/internal/shared/id"
)

// Cause is the exception block attached to an entity.
type Cause struct {
	WorkingDirectory string      `json:"working_directory,omitempty"`
	Exceptions       []Exception `json:"exceptions"`
}

// Exception describes one recorded error. Cause links to the id of the
// wrapped error's exception when err wraps another error.
type Exception struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Remote  bool   `json:"remote,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

// RemoteError marks an error as having originated in a downstream service.
type RemoteError interface {
	error
	Remote() bool
}

func newCause() *Cause {
	wd, _ := os.Getwd()
	return &Cause{WorkingDirectory: wd}
}

func newException(err error) Exception {
	ex := Exception{
		ID:      id.NewEntityID(),
		Message: err.Error(),
		Type:    fmt.Sprintf("%T", err),
	}
	var remote RemoteError
	if errors.As(err, &remote) {
		ex.Remote = remote.Remote()
	}
	if inner := errors.Unwrap(err); inner != nil {
		ex.Cause = fmt.Sprintf("%T", inner)
	}
	return ex
}
