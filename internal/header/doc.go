/*
Package header implements the trace propagation header codec.

# Wire Format

The header travels between services as

	X-Amzn-Trace-Id: Root=1-5e1b4151-5ac6c59dcc8f827d17f76b12;Parent=7f93d56d24e3f4c1;Sampled=1

Root is the trace id (version, 8 hex digits of epoch seconds, 24 hex digits of
randomness). Parent is the 16 hex digit id of the calling segment or
subsegment. Sampled is 1, 0 or ? (the caller asks the receiver to decide).

# Usage

	h, ok := header.Parse(r.Header.Get(header.Key))
	if !ok {
		h = header.Fresh()
	}
	out.Header.Set(header.Key, h.String())

Parsing is all-or-nothing: a header with one malformed field is treated as
absent.
*/
package header
