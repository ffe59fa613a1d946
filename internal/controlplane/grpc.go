package controlplane

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC service path segment used by every method
// below, standing in for the package.Service name a .proto would assign.
const serviceName = "lserver.controlplane.Stats"

// unaryStream adapts one StatsService method into a grpc.StreamHandler:
// decode exactly one request message, invoke the method, encode exactly
// one response message. grpc's unary RPCs are themselves implemented over
// its streaming transport, so a hand-registered ServiceDesc can express
// them as single-message streams without a generated unary Handler.
func unaryStream[Req, Resp any](srv any, stream grpc.ServerStream, call func(*StatsService, context.Context, *Req) (*Resp, error)) error {
	req := new(Req)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	resp, err := call(srv.(*StatsService), stream.Context(), req)
	if err != nil {
		return err
	}
	return stream.SendMsg(resp)
}

// ServiceDesc is the hand-registered grpc.ServiceDesc standing in for a
// protoc-generated one, grounded on original_source/src/control_server.hpp/
// .cpp's four RPCs.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "GetStats",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return unaryStream(srv, stream, (*StatsService).getStats)
			},
		},
		{
			StreamName: "AddContext",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return unaryStream(srv, stream, (*StatsService).addContext)
			},
		},
		{
			StreamName: "DeactivateContext",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return unaryStream(srv, stream, (*StatsService).deactivateContext)
			},
		},
		{
			StreamName: "GetContextsInfo",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return unaryStream(srv, stream, (*StatsService).getContextsInfo)
			},
		},
	},
	Metadata: "controlplane.go",
}
