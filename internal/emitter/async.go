package emitter

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/entity"
)

// DefaultQueueSize is the number of pending batches an AsyncEmitter holds.
const DefaultQueueSize = 1000

// AsyncEmitter decouples request goroutines from transport latency. A single
// consumer forwards batches to the wrapped emitter; when the queue is full
// new batches are dropped with a warning.
type AsyncEmitter struct {
	next  Emitter
	opts  options
	queue chan []entity.Document
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewAsyncEmitter starts the consumer goroutine.
func NewAsyncEmitter(next Emitter, size int, opts ...Option) *AsyncEmitter {
	if size <= 0 {
		size = DefaultQueueSize
	}
	a := &AsyncEmitter{
		next:  next,
		opts:  buildOptions(opts),
		queue: make(chan []entity.Document, size),
		done:  make(chan struct{}),
	}

	go a.consume()

	return a
}

// Send enqueues docs without blocking.
func (a *AsyncEmitter) Send(docs ...entity.Document) error {
	if len(docs) == 0 {
		return nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrEmitterClosed
	}

	select {
	case a.queue <- docs:
		a.opts.metrics.SetQueueDepth(len(a.queue))
		return nil
	default:
		a.opts.logger.Warn("emit queue full, dropping documents",
			zap.String("id", docs[0].ID),
			zap.Int("documents", len(docs)),
		)
		return ErrQueueFull
	}
}

// consume forwards queued batches
func (a *AsyncEmitter) consume() {
	defer close(a.done)

	for docs := range a.queue {
		a.opts.metrics.SetQueueDepth(len(a.queue))
		if err := a.next.Send(docs...); err != nil {
			a.opts.metrics.RecordDropped(DropReason(err), len(docs))
			a.opts.logger.Warn("Failed to emit documents",
				zap.String("id", docs[0].ID),
				zap.Int("documents", len(docs)),
				zap.Error(err))
		}
	}
}

// Shutdown stops accepting documents, waits for the queue to drain or ctx to
// end, then closes the wrapped emitter.
func (a *AsyncEmitter) Shutdown(ctx context.Context) error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.next.Close()
}

// Close drains the queue without a deadline.
func (a *AsyncEmitter) Close() error {
	return a.Shutdown(context.Background())
}
