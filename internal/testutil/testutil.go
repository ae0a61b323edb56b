// Package testutil provides mocks and helpers for recorder and adapter tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
	"github.com/GriffinCanCode/segtrace/internal/sampling"
)

// MockEmitter is a mock implementation of emitter.Emitter for testing.
type MockEmitter struct {
	mock.Mock
}

// Send mocks the Send method.
func (m *MockEmitter) Send(docs ...entity.Document) error {
	args := m.Called(docs)
	return args.Error(0)
}

// Close mocks the Close method.
func (m *MockEmitter) Close() error {
	args := m.Called()
	return args.Error(0)
}

// NewMockEmitter creates a mock emitter that accepts everything by default.
func NewMockEmitter(t *testing.T) *MockEmitter {
	t.Helper()
	m := new(MockEmitter)

	m.On("Send", mock.Anything).Return(nil).Maybe()
	m.On("Close").Return(nil).Maybe()

	return m
}

// MockStrategy is a mock implementation of sampling.Strategy for testing.
type MockStrategy struct {
	mock.Mock
}

// ShouldTrace mocks the ShouldTrace method.
func (m *MockStrategy) ShouldTrace(in sampling.Input) sampling.Response {
	args := m.Called(in)
	return args.Get(0).(sampling.Response)
}

// CaptureEmitter keeps every document it is sent.
type CaptureEmitter struct {
	mu   sync.Mutex
	docs []entity.Document
	sent chan struct{}
}

// NewCaptureEmitter creates an empty capture emitter.
func NewCaptureEmitter() *CaptureEmitter {
	return &CaptureEmitter{sent: make(chan struct{}, 1024)}
}

// Send stores docs.
func (c *CaptureEmitter) Send(docs ...entity.Document) error {
	c.mu.Lock()
	c.docs = append(c.docs, docs...)
	c.mu.Unlock()
	select {
	case c.sent <- struct{}{}:
	default:
	}
	return nil
}

// Close is a no-op.
func (c *CaptureEmitter) Close() error { return nil }

// Documents returns a copy of everything sent so far.
func (c *CaptureEmitter) Documents() []entity.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// WaitForDocuments blocks until at least n documents arrived or the timeout
// passes, then returns what was captured.
func (c *CaptureEmitter) WaitForDocuments(t *testing.T, n int, timeout time.Duration) []entity.Document {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if docs := c.Documents(); len(docs) >= n {
			return docs
		}
		select {
		case <-c.sent:
		case <-deadline:
			t.Fatalf("expected %d documents, got %d", n, len(c.Documents()))
			return nil
		}
	}
}

// NewRecorder creates a recorder that samples everything and captures its
// output. Extra options are applied on top.
func NewRecorder(t *testing.T, configure ...func(*recorder.Options)) (*recorder.Recorder, *CaptureEmitter) {
	t.Helper()
	capture := NewCaptureEmitter()
	opts := recorder.Options{
		ServiceName: "test-service",
		Emitter:     capture,
		Sampling:    sampling.AlwaysStrategy{},
		Logger:      zap.NewNop(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return recorder.New(opts), capture
}

// FindSubsegment searches doc depth-first for a subsegment named name.
func FindSubsegment(doc entity.Document, name string) (entity.Document, bool) {
	for _, sub := range doc.Subsegments {
		if sub.Name == name {
			return sub, true
		}
		if found, ok := FindSubsegment(sub, name); ok {
			return found, true
		}
	}
	return entity.Document{}, false
}

// Annotation reads a key from a document annotation block.
func Annotation(a *entity.Annotations, key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	return a.Get(key)
}
