package entity

import (
	"time"

	"github.com/bytedance/sonic"
)

// Document is the collector representation of an entity tree.
type Document struct {
	ID          string       `json:"id"`
	TraceID     string       `json:"trace_id,omitempty"`
	ParentID    string       `json:"parent_id,omitempty"`
	Type        string       `json:"type,omitempty"`
	Name        string       `json:"name"`
	StartTime   float64      `json:"start_time"`
	EndTime     float64      `json:"end_time,omitempty"`
	InProgress  bool         `json:"in_progress,omitempty"`
	Namespace   string       `json:"namespace,omitempty"`
	Origin      string       `json:"origin,omitempty"`
	Error       bool         `json:"error,omitempty"`
	Fault       bool         `json:"fault,omitempty"`
	Throttle    bool         `json:"throttle,omitempty"`
	HTTP        *Annotations `json:"http,omitempty"`
	SQL         *Annotations `json:"sql,omitempty"`
	AWS         *Annotations `json:"aws,omitempty"`
	Metadata    *Annotations `json:"metadata,omitempty"`
	Cause       *Cause       `json:"cause,omitempty"`
	Subsegments []Document   `json:"subsegments,omitempty"`
}

// Document snapshots e and its attached descendants. Only the entity being
// copied is locked at any time.
func (e *Entity) Document() Document {
	e.mu.Lock()
	doc := Document{
		ID:         e.ID,
		Name:       e.Name,
		StartTime:  epochSeconds(e.start),
		InProgress: e.inProgress,
		Namespace:  e.namespace,
		Error:      e.hasError,
		Fault:      e.hasFault,
		Throttle:   e.throttled,
		HTTP:       nonEmpty(&e.http),
		SQL:        nonEmpty(&e.sql),
		AWS:        nonEmpty(&e.aws),
		Metadata:   nonEmpty(&e.metadata),
	}
	if !e.inProgress {
		doc.EndTime = epochSeconds(e.end)
	}
	if e.cause != nil {
		c := *e.cause
		c.Exceptions = append([]Exception(nil), e.cause.Exceptions...)
		doc.Cause = &c
	}
	children := make([]*Entity, len(e.children))
	copy(children, e.children)
	e.mu.Unlock()

	if e.Kind == KindSegment {
		doc.TraceID = e.TraceID
		doc.ParentID = e.ParentID
		doc.Origin = e.Origin
	}
	for _, c := range children {
		doc.Subsegments = append(doc.Subsegments, c.Document())
	}
	return doc
}

// StandaloneDocument renders a subsegment for streaming, outside of its
// root's document.
func (e *Entity) StandaloneDocument() Document {
	doc := e.Document()
	if e.Kind == KindSubsegment {
		doc.Type = "subsegment"
		doc.TraceID = e.TraceID
		doc.ParentID = e.parent.ID
	}
	return doc
}

// Marshal encodes the document as JSON.
func (d Document) Marshal() ([]byte, error) {
	return sonic.Marshal(d)
}

// StreamCompleted detaches every finished subtree below e and returns their
// standalone documents. Unfinished children stay attached and are searched
// recursively. Nothing is detached once the root's emission is claimed.
func (e *Entity) StreamCompleted() []Document {
	e.root.emitMu.Lock()
	defer e.root.emitMu.Unlock()
	if e.root.emitted.Load() {
		return nil
	}
	return e.streamCompleted()
}

func (e *Entity) streamCompleted() []Document {
	e.mu.Lock()
	var done, pending []*Entity
	for _, c := range e.children {
		if c.refs.Load() == 0 {
			done = append(done, c)
		} else {
			pending = append(pending, c)
		}
	}
	e.children = pending
	e.mu.Unlock()

	var docs []Document
	for _, c := range done {
		docs = append(docs, c.StandaloneDocument())
		e.root.size.Add(-(c.subtreeSize()))
	}
	for _, c := range pending {
		docs = append(docs, c.streamCompleted()...)
	}
	return docs
}

func (e *Entity) subtreeSize() int32 {
	n := int32(1)
	for _, c := range e.Children() {
		n += c.subtreeSize()
	}
	return n
}

func nonEmpty(a *Annotations) *Annotations {
	if a.Len() == 0 {
		return nil
	}
	return a.Clone()
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
