package entity

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/shared/id"
)

// Annotation namespaces accepted by AddAnnotation.
const (
	NamespaceHTTP = "http"
	NamespaceSQL  = "sql"
	NamespaceAWS  = "aws"
)

// Remote calls are tagged with this namespace by the outbound adapters.
const NamespaceRemote = "remote"

var (
	// ErrUnknownNamespace is returned for annotation namespaces other than
	// http, sql and aws.
	ErrUnknownNamespace = errors.New("unknown annotation namespace")

	// ErrEntityReleased is returned when beginning a subsegment under an
	// entity whose whole subtree has already finished.
	ErrEntityReleased = errors.New("entity already released")
)

// Kind distinguishes root segments from subsegments.
type Kind int

const (
	KindSegment Kind = iota
	KindSubsegment
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindSegment:
		return "segment"
	case KindSubsegment:
		return "subsegment"
	default:
		return "unknown"
	}
}

// SamplingResponse is the outcome of a sampling decision.
type SamplingResponse struct {
	RuleName string
	Decision header.SampleDecision
}

// Entity is a segment (root, no parent) or a subsegment (exactly one parent).
//
// The reference count starts at one for the entity itself and gains one per
// child that has not yet finished. When it drops to zero the entity releases
// its own reference on its parent, so a root reaches zero only once every
// descendant has ended.
type Entity struct {
	ID       string
	Name     string
	TraceID  string
	ParentID string
	Kind     Kind
	RuleName string
	Origin   string

	sampled header.SampleDecision
	start   time.Time

	parent *Entity
	root   *Entity

	refs    atomic.Int32
	size    atomic.Int32 // attached subsegments, root only
	emitted atomic.Bool
	emitMu  sync.Mutex // root only; orders the final claim against streaming

	mu         sync.Mutex
	end        time.Time
	inProgress bool
	hasError   bool
	hasFault   bool
	throttled  bool
	namespace  string
	http       Annotations
	sql        Annotations
	aws        Annotations
	metadata   Annotations
	cause      *Cause
	children   []*Entity
}

// NewSegment creates an in-progress root segment. parentID is the upstream
// caller's entity id from the trace header and may be empty.
func NewSegment(name, traceID, parentID string, resp SamplingResponse, start time.Time) *Entity {
	s := &Entity{
		ID:         id.NewEntityID(),
		Name:       name,
		TraceID:    traceID,
		ParentID:   parentID,
		Kind:       KindSegment,
		RuleName:   resp.RuleName,
		sampled:    resp.Decision,
		start:      start,
		inProgress: true,
	}
	s.root = s
	s.refs.Store(1)
	return s
}

// BeginSubsegment creates an in-progress child of e. Children are appended in
// begin order; concurrent callers never lose a child.
func (e *Entity) BeginSubsegment(name string, start time.Time) (*Entity, error) {
	if !e.acquire() {
		return nil, fmt.Errorf("begin subsegment %q under %s %s: %w", name, e.Kind, e.ID, ErrEntityReleased)
	}

	child := &Entity{
		ID:         id.NewEntityID(),
		Name:       name,
		TraceID:    e.TraceID,
		ParentID:   e.ID,
		Kind:       KindSubsegment,
		sampled:    e.sampled,
		start:      start,
		parent:     e,
		root:       e.root,
		inProgress: true,
	}
	child.refs.Store(1)

	e.mu.Lock()
	e.children = append(e.children, child)
	e.mu.Unlock()

	e.root.size.Add(1)
	return child, nil
}

// acquire takes a reference for a new child unless the subtree is finished.
func (e *Entity) acquire() bool {
	for {
		n := e.refs.Load()
		if n <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops one reference and cascades to the parent at zero.
func (e *Entity) release() {
	if e.refs.Add(-1) == 0 && e.parent != nil {
		e.parent.release()
	}
}

// End finishes the entity. It reports false, changing nothing, when the
// entity has already ended.
func (e *Entity) End(t time.Time) bool {
	e.mu.Lock()
	if !e.inProgress {
		e.mu.Unlock()
		return false
	}
	e.inProgress = false
	e.end = t
	e.mu.Unlock()

	e.release()
	return true
}

// IsEmittable reports whether e is a finished root with no unfinished
// descendants.
func (e *Entity) IsEmittable() bool {
	return e.Kind == KindSegment && !e.IsInProgress() && e.refs.Load() == 0
}

// ClaimEmission returns true exactly once for an emittable root, so two
// goroutines ending the last subsegments together cannot both emit.
func (e *Entity) ClaimEmission() bool {
	e.root.emitMu.Lock()
	defer e.root.emitMu.Unlock()
	return e.IsEmittable() && e.emitted.CompareAndSwap(false, true)
}

// ClaimDocument is ClaimEmission that also snapshots the tree before any
// concurrent StreamCompleted can detach from it.
func (e *Entity) ClaimDocument() (Document, bool) {
	e.root.emitMu.Lock()
	defer e.root.emitMu.Unlock()
	if !e.IsEmittable() || !e.emitted.CompareAndSwap(false, true) {
		return Document{}, false
	}
	return e.Document(), true
}

// Emitted reports whether the root's emission has been claimed.
func (e *Entity) Emitted() bool { return e.root.emitted.Load() }

// Parent returns the owning entity, nil for segments.
func (e *Entity) Parent() *Entity { return e.parent }

// Root returns the segment at the top of the tree.
func (e *Entity) Root() *Entity { return e.root }

// Sampled returns the sampling decision inherited from the root.
func (e *Entity) Sampled() header.SampleDecision { return e.sampled }

// StartTime returns when the entity began.
func (e *Entity) StartTime() time.Time { return e.start }

// RefCount returns the number of outstanding references.
func (e *Entity) RefCount() int32 { return e.refs.Load() }

// Size returns the number of subsegments attached to the tree. Only
// meaningful on a root.
func (e *Entity) Size() int32 { return e.root.size.Load() }

// EndTime returns the end time and whether it has been set.
func (e *Entity) EndTime() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.end, !e.inProgress
}

// IsInProgress reports whether End has not been called yet.
func (e *Entity) IsInProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inProgress
}

// Children returns a snapshot of the children in begin order.
func (e *Entity) Children() []*Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Entity, len(e.children))
	copy(out, e.children)
	return out
}

// AddAnnotation upserts key in the http, sql or aws namespace.
func (e *Entity) AddAnnotation(namespace, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch namespace {
	case NamespaceHTTP:
		e.http.Set(key, value)
	case NamespaceSQL:
		e.sql.Set(key, value)
	case NamespaceAWS:
		e.aws.Set(key, value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, namespace)
	}
	return nil
}

// Annotation reads back a single annotation.
func (e *Entity) Annotation(namespace, key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch namespace {
	case NamespaceHTTP:
		return e.http.Get(key)
	case NamespaceSQL:
		return e.sql.Get(key)
	case NamespaceAWS:
		return e.aws.Get(key)
	default:
		return nil, false
	}
}

// AnnotationKeys returns the keys of a namespace in insertion order.
func (e *Entity) AnnotationKeys(namespace string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch namespace {
	case NamespaceHTTP:
		return e.http.Keys()
	case NamespaceSQL:
		return e.sql.Keys()
	case NamespaceAWS:
		return e.aws.Keys()
	default:
		return nil
	}
}

// AddMetadata records free-form data that is not indexed by the collector.
func (e *Entity) AddMetadata(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metadata.Set(key, value)
}

// SetNamespace tags the entity, "remote" for downstream calls and "aws" for
// SDK calls.
func (e *Entity) SetNamespace(ns string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.namespace = ns
}

// Namespace returns the entity namespace.
func (e *Entity) Namespace() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.namespace
}

// MarkError flags a client error and clears any fault.
func (e *Entity) MarkError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasError = true
	e.hasFault = false
}

// MarkFault flags a server fault and clears error and throttle.
func (e *Entity) MarkFault() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasFault = true
	e.hasError = false
	e.throttled = false
}

// MarkThrottle flags throttling. Throttling is a kind of client error, so
// error is set and fault cleared.
func (e *Entity) MarkThrottle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.throttled = true
	e.hasError = true
	e.hasFault = false
}

// MarkFromStatus applies the HTTP status mapping: 4xx error, 429 error and
// throttle, 5xx fault. Other codes change nothing.
func (e *Entity) MarkFromStatus(code int) {
	switch {
	case code == 429:
		e.MarkThrottle()
	case code >= 400 && code <= 499:
		e.MarkError()
	case code >= 500 && code <= 599:
		e.MarkFault()
	}
}

// Flags returns error, fault and throttle.
func (e *Entity) Flags() (hasError, hasFault, throttled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasError, e.hasFault, e.throttled
}

// AddException records err in the cause block. An entity that is not
// already flagged as a client error becomes a fault.
func (e *Entity) AddException(err error) {
	if err == nil {
		return
	}
	ex := newException(err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cause == nil {
		e.cause = newCause()
	}
	e.cause.Exceptions = append(e.cause.Exceptions, ex)
	if !e.hasError {
		e.hasFault = true
	}
}

// Exceptions returns a copy of the recorded exceptions.
func (e *Entity) Exceptions() []Exception {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cause == nil {
		return nil
	}
	out := make([]Exception, len(e.cause.Exceptions))
	copy(out, e.cause.Exceptions)
	return out
}
