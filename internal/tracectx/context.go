// Package tracectx carries the current entity of a logical operation.
//
// The current entity lives in a context.Context value, not in goroutine
// state, so it follows the request through every goroutine the context is
// handed to and can never leak into an unrelated request.
package tracectx

import (
	"context"

	"github.com/GriffinCanCode/segtrace/internal/entity"
)

type contextKey struct{}

var entityKey contextKey

// slot distinguishes "cleared" from "never set".
type slot struct {
	e *entity.Entity
}

// SetEntity returns a context whose current entity is e.
func SetEntity(ctx context.Context, e *entity.Entity) context.Context {
	return context.WithValue(ctx, entityKey, slot{e: e})
}

// GetEntity returns the current entity of ctx.
func GetEntity(ctx context.Context) (*entity.Entity, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(entityKey).(slot)
	if !ok || s.e == nil {
		return nil, false
	}
	return s.e, true
}

// ClearEntity returns a context with no current entity, hiding any entity
// set by an ancestor context.
func ClearEntity(ctx context.Context) context.Context {
	return context.WithValue(ctx, entityKey, slot{})
}
