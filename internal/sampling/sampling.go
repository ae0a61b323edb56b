package sampling

import (
	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/header"
)

// DefaultRuleName names the catch-all rule evaluated last.
const DefaultRuleName = "Default"

// Input describes the request a decision is made for.
type Input struct {
	Host        string
	Path        string
	Method      string
	SegmentName string
	Origin      string
}

// Response is the decision and the rule that produced it.
type Response = entity.SamplingResponse

// Strategy decides whether a request is traced. Implementations must be safe
// for concurrent use and must only return Sampled or NotSampled.
type Strategy interface {
	ShouldTrace(in Input) Response
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(in Input) Response

// ShouldTrace calls f.
func (f StrategyFunc) ShouldTrace(in Input) Response { return f(in) }

// NotSampledStrategy drops everything. It is the safe decision when no
// sampling source is available.
type NotSampledStrategy struct{}

// ShouldTrace always returns NotSampled.
func (NotSampledStrategy) ShouldTrace(Input) Response {
	return Response{Decision: header.NotSampled}
}

// AlwaysStrategy samples everything.
type AlwaysStrategy struct{}

// ShouldTrace always returns Sampled.
func (AlwaysStrategy) ShouldTrace(Input) Response {
	return Response{Decision: header.Sampled}
}

// Decide resolves the decision for an inbound header. A Sampled or
// NotSampled decision from upstream is honored; Unknown and Requested are
// resolved by s.
func Decide(s Strategy, h header.TraceHeader, in Input) Response {
	if h.Sampled.Resolved() {
		return Response{Decision: h.Sampled}
	}
	if s == nil {
		return NotSampledStrategy{}.ShouldTrace(in)
	}
	resp := s.ShouldTrace(in)
	if !resp.Decision.Resolved() {
		resp.Decision = header.NotSampled
	}
	return resp
}
