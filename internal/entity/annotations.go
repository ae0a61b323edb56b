package entity

import (
	"bytes"

	"github.com/bytedance/sonic"
)

// Annotations is a string keyed map that remembers insertion order, so that
// emitted documents and test assertions are deterministic.
//
// Annotations is not safe for concurrent use; Entity guards its maps with its
// own mutex.
type Annotations struct {
	keys   []string
	values map[string]any
}

// Set upserts key. Updating an existing key keeps its original position.
func (a *Annotations) Set(key string, value any) {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, exists := a.values[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

// Get returns the value stored under key.
func (a *Annotations) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (a *Annotations) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of keys.
func (a *Annotations) Len() int {
	return len(a.keys)
}

// Clone returns a shallow copy. Nested maps are shared.
func (a *Annotations) Clone() *Annotations {
	c := &Annotations{
		keys:   make([]string, len(a.keys)),
		values: make(map[string]any, len(a.values)),
	}
	copy(c.keys, a.keys)
	for k, v := range a.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the keys in insertion order.
func (a *Annotations) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := sonic.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := sonic.Marshal(a.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
