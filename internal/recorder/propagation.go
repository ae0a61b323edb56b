package recorder

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/sampling"
	"github.com/GriffinCanCode/segtrace/internal/tracectx"
)

// ExtractHeader parses an inbound propagation header. Malformed or missing
// input yields a fresh header with an Unknown decision.
func (r *Recorder) ExtractHeader(raw string) header.TraceHeader {
	h, ok := header.Extract(raw)
	if !ok && raw != "" {
		r.logger.Debug("Malformed trace header, starting a new trace",
			zap.String("header", raw))
	}
	return h
}

// Decide resolves the sampling decision for an inbound request. An empty
// in.Origin takes the recorder's origin.
func (r *Recorder) Decide(h header.TraceHeader, in sampling.Input) sampling.Response {
	if in.Origin == "" {
		in.Origin = r.origin
	}
	resp := sampling.Decide(r.sampling, h, in)
	r.metrics.RecordSamplingDecision(resp.RuleName, resp.Decision.String())
	return resp
}

// HeaderFor builds the header for an outbound call made under the current
// entity: same trace, the current entity as parent, and the root's decision.
func (r *Recorder) HeaderFor(ctx context.Context) (header.TraceHeader, bool) {
	if r.disabled {
		return header.TraceHeader{}, false
	}
	e, ok := tracectx.GetEntity(ctx)
	if !ok {
		return header.TraceHeader{}, false
	}
	return header.TraceHeader{
		RootTraceID: e.TraceID,
		ParentID:    e.ID,
		Sampled:     e.Sampled(),
	}, true
}
