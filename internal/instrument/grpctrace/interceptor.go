package grpctrace

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/GriffinCanCode/segtrace/internal/entity"
	"github.com/GriffinCanCode/segtrace/internal/header"
	"github.com/GriffinCanCode/segtrace/internal/recorder"
	"github.com/GriffinCanCode/segtrace/internal/sampling"
)

// UnaryServerInterceptor traces each unary call as a segment.
func UnaryServerInterceptor(rec *recorder.Recorder) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		ctx, seg := beginServer(ctx, rec, info.FullMethod, false)
		if seg == nil {
			return handler(ctx, req)
		}
		defer func() {
			if p := recover(); p != nil {
				seg.AddException(fmt.Errorf("panic: %v", p))
				seg.MarkFault()
				rec.EndEntity(seg)
				panic(p)
			}
			finish(rec, seg, err)
		}()

		if m, ok := req.(proto.Message); ok {
			seg.AddMetadata("request_size", proto.Size(m))
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor traces each streaming call as a segment that lasts
// for the life of the stream.
func StreamServerInterceptor(rec *recorder.Recorder) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx, seg := beginServer(ss.Context(), rec, info.FullMethod, true)
		if seg == nil {
			return handler(srv, ss)
		}
		defer func() {
			if p := recover(); p != nil {
				seg.AddException(fmt.Errorf("panic: %v", p))
				seg.MarkFault()
				rec.EndEntity(seg)
				panic(p)
			}
			finish(rec, seg, err)
		}()

		return handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// tracedServerStream wraps grpc.ServerStream with the traced context.
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// UnaryClientInterceptor traces outgoing calls as remote subsegments and
// propagates the trace header through metadata.
func UnaryClientInterceptor(rec *recorder.Recorder) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) (err error) {
		if !rec.Enabled() {
			return invoker(ctx, method, req, reply, cc, opts...)
		}

		subCtx, sub, err := rec.BeginSubsegment(ctx, targetName(cc.Target()))
		if err != nil {
			return err
		}
		if sub == nil {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		defer func() {
			if p := recover(); p != nil {
				sub.AddException(fmt.Errorf("panic: %v", p))
				sub.MarkFault()
				rec.EndEntity(sub)
				panic(p)
			}
			finish(rec, sub, err)
		}()

		sub.SetNamespace(entity.NamespaceRemote)
		sub.AddMetadata("grpc", map[string]any{"method": method, "kind": "client"})
		if m, ok := req.(proto.Message); ok {
			sub.AddMetadata("request_size", proto.Size(m))
		}

		if h, ok := rec.HeaderFor(subCtx); ok {
			subCtx = metadata.AppendToOutgoingContext(subCtx, header.MetadataKey, h.String())
		}

		return invoker(subCtx, method, req, reply, cc, opts...)
	}
}

// targetName drops the resolver scheme from a dial target.
func targetName(target string) string {
	if i := strings.LastIndex(target, "/"); i >= 0 {
		return target[i+1:]
	}
	return target
}

func beginServer(ctx context.Context, rec *recorder.Recorder, method string, streaming bool) (context.Context, *entity.Entity) {
	if !rec.Enabled() {
		return ctx, nil
	}

	var raw, authority string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(header.MetadataKey); len(vals) > 0 {
			raw = vals[0]
		}
		if vals := md.Get(":authority"); len(vals) > 0 {
			authority = vals[0]
		}
	}

	h := rec.ExtractHeader(raw)
	name := rec.ServiceName()
	resp := rec.Decide(h, sampling.Input{
		Host:        authority,
		Path:        method,
		Method:      "POST",
		SegmentName: name,
		Origin:      rec.Origin(),
	})

	ctx, seg, err := rec.BeginSegment(ctx, name, h.RootTraceID, h.ParentID, resp, rec.Now())
	if err != nil || seg == nil {
		return ctx, nil
	}
	seg.AddMetadata("grpc", map[string]any{"method": method, "kind": "server", "streaming": streaming})
	return ctx, seg
}

func finish(rec *recorder.Recorder, e *entity.Entity, err error) {
	if err != nil {
		code := status.Code(err)
		e.AddMetadata("grpc_status", code.String())
		MarkFromCode(e, code)
		e.AddException(err)
	}
	rec.EndEntity(e)
}

// MarkFromCode maps a gRPC status code onto the entity flags: caller
// mistakes are errors, ResourceExhausted is a throttle and server-side
// failures are faults.
func MarkFromCode(e *entity.Entity, code codes.Code) {
	switch code {
	case codes.OK:
	case codes.ResourceExhausted:
		e.MarkThrottle()
	case codes.Canceled, codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition, codes.OutOfRange:
		e.MarkError()
	default:
		e.MarkFault()
	}
}
