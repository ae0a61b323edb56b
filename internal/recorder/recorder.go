package recorder

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/emitter"
	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/segtrace/internal/sampling"
	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

var (
	// ErrSegmentNesting is reported when a segment is begun while the
	// context already carries an in-progress entity.
	ErrSegmentNesting = errors.New("segment cannot begin inside an active entity")

	// ErrWrongEntityKind is reported when EndSegment finds a subsegment or
	// EndSubsegment finds a segment.
	ErrWrongEntityKind = errors.New("current entity has the wrong kind")
)

// Options configures a Recorder. Zero values select defaults.
type Options struct {
	// ServiceName is the default segment name used by adapters.
	ServiceName string
	// Origin tags every segment with the platform it runs on.
	Origin string
	// Emitter receives finished documents. Defaults to emitter.Discard.
	Emitter emitter.Emitter
	// Sampling decides for requests whose header has not. Defaults to the
	// built-in local rule.
	Sampling sampling.Strategy
	// Streaming decides when completed subtrees leave early. Defaults to
	// DefaultStreaming.
	Streaming Streaming
	// Policy applies when an operation finds no current entity.
	Policy tracectx.Policy
	// Disabled turns every operation into a no-op.
	Disabled bool

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	Now     func() time.Time
}

// Recorder drives the segment lifecycle. The current entity travels in the
// context; the recorder itself holds no per-request state and is safe for
// concurrent use.
type Recorder struct {
	serviceName string
	origin      string
	emitter     emitter.Emitter
	sampling    sampling.Strategy
	streaming   Streaming
	policy      tracectx.Policy
	disabled    bool
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	now         func() time.Time
}

// New creates a recorder.
func New(opts Options) *Recorder {
	r := &Recorder{
		serviceName: opts.ServiceName,
		origin:      opts.Origin,
		emitter:     opts.Emitter,
		sampling:    opts.Sampling,
		streaming:   opts.Streaming,
		policy:      opts.Policy,
		disabled:    opts.Disabled,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
	if r.serviceName == "" {
		r.serviceName = "DefaultService"
	}
	if r.emitter == nil {
		r.emitter = emitter.Discard{}
	}
	if r.sampling == nil {
		r.sampling = sampling.NewDefaultLocalStrategy()
	}
	if r.streaming == nil {
		r.streaming = DefaultStreaming{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// ServiceName returns the default segment name.
func (r *Recorder) ServiceName() string { return r.serviceName }

// Origin returns the platform tag given to segments and sampling.
func (r *Recorder) Origin() string { return r.origin }

// Enabled reports whether tracing is on.
func (r *Recorder) Enabled() bool { return !r.disabled }

// Policy returns the missing-entity policy.
func (r *Recorder) Policy() tracectx.Policy { return r.policy }

// Logger returns the recorder's logger for adapters.
func (r *Recorder) Logger() *zap.Logger { return r.logger }

// Now returns the recorder clock's current time.
func (r *Recorder) Now() time.Time { return r.now() }

// GetEntity returns the current entity. A missing entity is handled by the
// policy; under LogOnly and Ignore both results are nil.
func (r *Recorder) GetEntity(ctx context.Context) (*entity.Entity, error) {
	return r.current(ctx, "get_entity")
}

// current returns the entity in ctx or applies the policy. A nil entity with
// a nil error means the caller should do nothing.
func (r *Recorder) current(ctx context.Context, op string) (*entity.Entity, error) {
	if r.disabled {
		return nil, nil
	}
	if e, ok := tracectx.GetEntity(ctx); ok {
		return e, nil
	}
	r.metrics.RecordEntityMissing(op)
	return nil, tracectx.HandleEntityMissing(r.policy, r.logger, op)
}

// violation applies the policy to a misuse other than a missing entity.
func (r *Recorder) violation(op string, err error) error {
	switch r.policy {
	case tracectx.Strict:
		return err
	case tracectx.Ignore:
		return nil
	default:
		r.logger.Error("Invalid trace context transition",
			zap.String("operation", op),
			zap.Error(err))
		return nil
	}
}

// Drain closes the emitter, waiting up to timeout for queued documents.
func (r *Recorder) Drain(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s, ok := r.emitter.(interface{ Shutdown(context.Context) error }); ok {
		return s.Shutdown(ctx)
	}
	return r.emitter.Close()
}
