package recorder

import "github.com/GriffinCanCode/segtrace/internal/entity"

// DefaultMaxSubsegments is the streaming threshold of DefaultStreaming.
const DefaultMaxSubsegments = 100

// Streaming decides whether completed subtrees of a still-open segment are
// sent ahead of it.
type Streaming interface {
	ShouldStream(root *entity.Entity) bool
}

// DefaultStreaming streams once the segment holds more than MaxSubsegments
// attached subsegments. Zero means DefaultMaxSubsegments.
type DefaultStreaming struct {
	MaxSubsegments int
}

// ShouldStream compares the root's attached subsegment count with the limit.
func (s DefaultStreaming) ShouldStream(root *entity.Entity) bool {
	limit := s.MaxSubsegments
	if limit <= 0 {
		limit = DefaultMaxSubsegments
	}
	return int(root.Size()) > limit
}

// NeverStream keeps every segment whole.
type NeverStream struct{}

func (NeverStream) ShouldStream(*entity.Entity) bool { return false }
