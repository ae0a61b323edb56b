package sqltrace

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

// Tracer records database commands as remote subsegments.
type Tracer struct {
	rec            *recorder.Recorder
	collectQueries bool
}

// New creates a tracer. Query text is recorded only when collectQueries is
// set, since it may contain customer data.
func New(rec *recorder.Recorder, collectQueries bool) *Tracer {
	return &Tracer{rec: rec, collectQueries: collectQueries}
}

// Begin starts a subsegment for cmd. It returns a nil entity when tracing is
// off or the current subsegment already describes a SQL call, as happens
// when an ORM and its driver are both instrumented.
func (t *Tracer) Begin(ctx context.Context, cmd Command) (context.Context, *entity.Entity, error) {
	if !t.rec.Enabled() || nested(ctx) {
		return ctx, nil, nil
	}

	ctx, sub, err := t.rec.BeginSubsegment(ctx, cmd.SubsegmentName())
	if sub == nil {
		return ctx, nil, err
	}
	sub.SetNamespace(entity.NamespaceRemote)

	info := map[string]any{
		"database_type": DatabaseType(cmd.DriverName),
	}
	if cmd.ServerVersion != "" {
		info["database_version"] = cmd.ServerVersion
	}
	if cmd.ConnectionString != "" {
		scrubbed, user := ScrubConnectionString(cmd.ConnectionString)
		info["connection_string"] = scrubbed
		if user != "" {
			info["user"] = user
		}
	}
	if t.collectQueries && cmd.CommandText != "" {
		info["sanitized_query"] = cmd.CommandText
	}
	for k, v := range info {
		_ = sub.AddAnnotation(entity.NamespaceSQL, k, v)
	}
	return ctx, sub, nil
}

// End finishes a subsegment from Begin, recording err. A nil sub is ignored.
func (t *Tracer) End(sub *entity.Entity, err error) {
	if sub == nil {
		return
	}
	if err != nil {
		sub.AddException(err)
	}
	t.rec.EndEntity(sub)
}

// Exec runs fn inside a subsegment for cmd.
func (t *Tracer) Exec(ctx context.Context, cmd Command, fn func(context.Context) error) (err error) {
	subCtx, sub, err := t.Begin(ctx, cmd)
	if err != nil {
		return err
	}
	if sub == nil {
		return fn(ctx)
	}

	defer func() {
		if p := recover(); p != nil {
			sub.AddException(fmt.Errorf("panic: %v", p))
			sub.MarkFault()
			t.rec.EndEntity(sub)
			panic(p)
		}
		t.End(sub, err)
	}()
	return fn(subCtx)
}

func nested(ctx context.Context) bool {
	cur, ok := tracectx.GetEntity(ctx)
	if !ok || cur.Kind != entity.KindSubsegment || !cur.IsInProgress() {
		return false
	}
	return len(cur.AnnotationKeys(entity.NamespaceSQL)) > 0
}
