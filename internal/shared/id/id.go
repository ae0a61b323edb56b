// Package id provides centralized ID generation for the recorder.
//
// Three ID families are produced here:
//   - Entity IDs: 16 hex digits, one per segment, subsegment and exception
//   - Random hex: the random part of root trace IDs
//   - Batch IDs: prefixed ULIDs tagging collector uploads, k-sortable in logs
//
// All generators share a single entropy source guarded by a mutex so tests can
// swap in deterministic entropy.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// BatchPrefix tags collector batch IDs in logs.
const BatchPrefix = "batch"

// Generator produces IDs from a shared entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// RandomHex returns n random bytes encoded as 2n lowercase hex digits.
func (g *Generator) RandomHex(n int) string {
	buf := make([]byte, n)

	g.entropyMu.Lock()
	_, err := io.ReadFull(g.entropy, buf)
	g.entropyMu.Unlock()

	if err != nil {
		// crypto/rand does not fail on supported platforms; a broken test
		// reader should be loud.
		panic(fmt.Sprintf("id: entropy source failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// EntityID returns a 16 hex digit segment/subsegment ID.
func (g *Generator) EntityID() string {
	return g.RandomHex(8)
}

// BatchID returns a prefixed ULID for a collector upload.
func (g *Generator) BatchID() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return fmt.Sprintf("%s_%s", BatchPrefix, ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String())
}

// ClientID returns an opaque identifier for this process when talking to a
// sampling service.
func (g *Generator) ClientID() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	u, err := uuid.NewRandomFromReader(g.entropy)
	if err != nil {
		panic(fmt.Sprintf("id: entropy source failed: %v", err))
	}
	return u.String()
}

// NewEntityID generates an entity ID from the default generator.
func NewEntityID() string {
	return Default().EntityID()
}

// NewBatchID generates a batch ID from the default generator.
func NewBatchID() string {
	return Default().BatchID()
}

// BatchTimestamp extracts the creation time from a batch ID.
func BatchTimestamp(batchID string) (time.Time, error) {
	const prefixLen = len(BatchPrefix) + 1
	if len(batchID) <= prefixLen || batchID[:prefixLen] != BatchPrefix+"_" {
		return time.Time{}, fmt.Errorf("invalid batch id %q", batchID)
	}
	parsed, err := ulid.Parse(batchID[prefixLen:])
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
