/*
Package recorder is the segment lifecycle API used by instrumentation.

A request moves through NoEntity, SegmentActive, any number of nested
SubsegmentActive states, and finally SegmentEnded. Each Begin call returns a
derived context carrying the new entity, and each End call returns the
context to continue with. Because the current entity is a context value it
follows the request across goroutines and never leaks between requests.

	ctx, seg, err := rec.BeginSegment(ctx, "orders", h.RootTraceID, h.ParentID, resp, time.Time{})
	defer rec.EndEntity(seg)

	err = rec.Capture(ctx, "inventory", func(ctx context.Context) error {
		return inventory.Reserve(ctx, items)
	})

A segment is handed to the emitter once it and every descendant have ended.
Large segments stream completed subtrees early, see Streaming. Segments that
were not sampled are never emitted.

Operations that find no entity in the context follow the configured
tracectx.Policy. No operation panics or fails the host request unless the
Strict policy asks for errors.
*/
package recorder
