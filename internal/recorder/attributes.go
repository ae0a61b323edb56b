package recorder

import (
	"context"

	"github.com/GriffinCanCode/segtrace/internal/entity"
)

// AddAnnotation upserts key in the http, sql or aws namespace of the current
// entity. An unknown namespace is always an error.
func (r *Recorder) AddAnnotation(ctx context.Context, namespace, key string, value any) error {
	e, err := r.current(ctx, "add_annotation")
	if e == nil {
		return err
	}
	return e.AddAnnotation(namespace, key, value)
}

// AddHTTPInformation records request or response data, for example
// "request" or "response" maps.
func (r *Recorder) AddHTTPInformation(ctx context.Context, key string, value any) error {
	return r.AddAnnotation(ctx, entity.NamespaceHTTP, key, value)
}

// AddSQLInformation records a database call attribute.
func (r *Recorder) AddSQLInformation(ctx context.Context, key string, value any) error {
	return r.AddAnnotation(ctx, entity.NamespaceSQL, key, value)
}

// AddAWSInformation records a cloud SDK call attribute.
func (r *Recorder) AddAWSInformation(ctx context.Context, key string, value any) error {
	return r.AddAnnotation(ctx, entity.NamespaceAWS, key, value)
}

// AddMetadata records unindexed data on the current entity.
func (r *Recorder) AddMetadata(ctx context.Context, key string, value any) error {
	e, err := r.current(ctx, "add_metadata")
	if e == nil {
		return err
	}
	e.AddMetadata(key, value)
	return nil
}

// SetNamespace tags the current entity.
func (r *Recorder) SetNamespace(ctx context.Context, namespace string) error {
	e, err := r.current(ctx, "set_namespace")
	if e == nil {
		return err
	}
	e.SetNamespace(namespace)
	return nil
}

// MarkError flags the current entity as a client error.
func (r *Recorder) MarkError(ctx context.Context) error {
	return r.mark(ctx, "mark_error", (*entity.Entity).MarkError)
}

// MarkFault flags the current entity as a server fault.
func (r *Recorder) MarkFault(ctx context.Context) error {
	return r.mark(ctx, "mark_fault", (*entity.Entity).MarkFault)
}

// MarkThrottle flags the current entity as throttled.
func (r *Recorder) MarkThrottle(ctx context.Context) error {
	return r.mark(ctx, "mark_throttle", (*entity.Entity).MarkThrottle)
}

// MarkErrorFromStatus applies the HTTP status mapping to the current entity.
func (r *Recorder) MarkErrorFromStatus(ctx context.Context, code int) error {
	return r.mark(ctx, "mark_from_status", func(e *entity.Entity) { e.MarkFromStatus(code) })
}

// AddException records err on the current entity.
func (r *Recorder) AddException(ctx context.Context, err error) error {
	return r.mark(ctx, "add_exception", func(e *entity.Entity) { e.AddException(err) })
}

func (r *Recorder) mark(ctx context.Context, op string, fn func(*entity.Entity)) error {
	e, err := r.current(ctx, op)
	if e == nil {
		return err
	}
	fn(e)
	return nil
}
