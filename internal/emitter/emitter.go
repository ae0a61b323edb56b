package emitter

import (
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/infrastructure/monitoring"
)

var (
	ErrEmitterClosed    = errors.New("emitter closed")
	ErrQueueFull        = errors.New("emit queue full")
	ErrDocumentTooLarge = errors.New("document exceeds packet size")
)

// Emitter transports finished documents to a collector. Send must be safe for
// concurrent use. The recorder only hands over complete segment trees, or
// completed subtrees when streaming.
type Emitter interface {
	Send(docs ...entity.Document) error
	Close() error
}

// DropReason maps a Send error to the dropped-documents metric label.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return monitoring.DropQueueFull
	case errors.Is(err, ErrDocumentTooLarge):
		return monitoring.DropTooLarge
	default:
		return monitoring.DropEmitError
	}
}

// Option configures the ambient dependencies of an emitter.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics enables transport metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Discard drops every document. Used when tracing is disabled.
type Discard struct{}

func (Discard) Send(...entity.Document) error { return nil }
func (Discard) Close() error                  { return nil }
