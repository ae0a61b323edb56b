package recorder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/emitter"
	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

// BeginSegment starts a root segment and returns a context carrying it. An
// empty traceID mints a new one and a zero start uses the recorder clock.
// NotSampled segments are created so nested calls work, but never emitted.
//
// Segments do not nest: when ctx already carries an in-progress entity no
// segment is created and the policy decides the error.
func (r *Recorder) BeginSegment(ctx context.Context, name, traceID, parentID string, resp entity.SamplingResponse, start time.Time) (context.Context, *entity.Entity, error) {
	if r.disabled {
		return ctx, nil, nil
	}
	if cur, ok := tracectx.GetEntity(ctx); ok && cur.IsInProgress() {
		err := fmt.Errorf("begin segment %q inside %s %s: %w", name, cur.Kind, cur.ID, ErrSegmentNesting)
		return ctx, nil, r.violation("begin_segment", err)
	}

	if name == "" {
		name = r.serviceName
	}
	if traceID == "" {
		traceID = header.NewTraceID()
	}
	if start.IsZero() {
		start = r.now()
	}

	seg := entity.NewSegment(name, traceID, parentID, resp, start)
	seg.Origin = r.origin
	r.metrics.RecordSegmentBegun(resp.Decision == header.Sampled)

	return tracectx.SetEntity(ctx, seg), seg, nil
}

// BeginSubsegment starts a child of the current entity.
func (r *Recorder) BeginSubsegment(ctx context.Context, name string) (context.Context, *entity.Entity, error) {
	parent, err := r.current(ctx, "begin_subsegment")
	if parent == nil {
		return ctx, nil, err
	}

	sub, err := parent.BeginSubsegment(name, r.now())
	if err != nil {
		return ctx, nil, r.violation("begin_subsegment", err)
	}
	r.metrics.RecordSubsegmentBegun()

	return tracectx.SetEntity(ctx, sub), sub, nil
}

// EndSubsegment ends the current subsegment and returns a context carrying
// its parent.
func (r *Recorder) EndSubsegment(ctx context.Context) (context.Context, error) {
	cur, err := r.current(ctx, "end_subsegment")
	if cur == nil {
		return ctx, err
	}
	if cur.Kind != entity.KindSubsegment {
		err := fmt.Errorf("end subsegment: current is %s %s: %w", cur.Kind, cur.ID, ErrWrongEntityKind)
		return ctx, r.violation("end_subsegment", err)
	}

	r.finish(cur)
	return tracectx.SetEntity(ctx, cur.Parent()), nil
}

// EndSegment ends the current segment and returns a context with no entity.
func (r *Recorder) EndSegment(ctx context.Context) (context.Context, error) {
	cur, err := r.current(ctx, "end_segment")
	if cur == nil {
		return ctx, err
	}
	if cur.Kind != entity.KindSegment {
		err := fmt.Errorf("end segment: current is %s %s: %w", cur.Kind, cur.ID, ErrWrongEntityKind)
		return ctx, r.violation("end_segment", err)
	}

	r.finish(cur)
	return tracectx.ClearEntity(ctx), nil
}

// EndEntity ends the entity returned by a Begin call, for adapters whose
// begin and end run in different callbacks. Ending twice is a no-op.
func (r *Recorder) EndEntity(e *entity.Entity) {
	if r.disabled || e == nil {
		return
	}
	r.finish(e)
}

// Capture runs fn inside a subsegment named name. The subsegment always
// ends: fn's error is recorded as an exception, and a panic is recorded as a
// fault before it propagates.
func (r *Recorder) Capture(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	subCtx, sub, err := r.BeginSubsegment(ctx, name)
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
			r.finish(sub)
			panic(p)
		}
	}()

	err = fn(subCtx)
	if err != nil {
		sub.AddException(err)
	}
	r.finish(sub)
	return err
}

// finish ends e and hands the tree, or its completed part, to the emitter.
func (r *Recorder) finish(e *entity.Entity) {
	if !e.End(r.now()) {
		r.logger.Debug("Entity already ended",
			zap.String("id", e.ID),
			zap.String("name", e.Name))
		return
	}

	root := e.Root()
	if root.Sampled() != header.Sampled {
		if root.ClaimEmission() {
			r.metrics.RecordDropped(monitoring.DropNotSampled, 1)
		}
		return
	}

	if doc, ok := root.ClaimDocument(); ok {
		r.send(doc)
		r.metrics.RecordEmitted()
		return
	}

	if e.Kind == entity.KindSubsegment && !root.Emitted() && r.streaming.ShouldStream(root) {
		if docs := root.StreamCompleted(); len(docs) > 0 {
			r.send(docs...)
			r.metrics.RecordStreamed(len(docs))
		}
	}
}

func (r *Recorder) send(docs ...entity.Document) {
	if err := r.emitter.Send(docs...); err != nil {
		r.metrics.RecordDropped(emitter.DropReason(err), len(docs))
		r.logger.Warn("Failed to emit segment documents",
			zap.String("id", docs[0].ID),
			zap.Int("documents", len(docs)),
			zap.Error(err))
	}
}
