// Package entity implements the segment/subsegment tree.
//
// A Segment is the root of one trace (one inbound request); Subsegments are
// its children (outbound calls, queries). Every entity carries ordered
// http/sql/aws annotation maps, error/fault/throttle flags, an exception
// cause block and a reference count that gates emission: a root may be sent
// to the collector only once it and every descendant have ended.
//
// Entities are safe for concurrent use. Parallel outbound calls may begin
// subsegments under the same parent from different goroutines.
package entity
