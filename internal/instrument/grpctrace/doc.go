// Package grpctrace provides gRPC interceptors that continue traces across
// RPC boundaries.
//
// Server interceptors begin a segment per call from the x-amzn-trace-id
// metadata entry; the client interceptor begins a remote subsegment per call
// and writes that entry for the callee. Status codes map onto the error,
// throttle and fault flags through MarkFromCode.
//
//	srv := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(grpctrace.UnaryServerInterceptor(rec)),
//		grpc.ChainStreamInterceptor(grpctrace.StreamServerInterceptor(rec)),
//	)
package grpctrace
