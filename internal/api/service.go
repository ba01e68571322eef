// Package api is the daemon's admin gRPC service. Messages are protobuf
// well-known types, so the service is described by hand instead of generated.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "doska.v1.AdminService"

const (
	methodGetStatus       = "/" + serviceName + "/GetStatus"
	methodListRetractions = "/" + serviceName + "/ListRetractions"
	methodCancelDraft     = "/" + serviceName + "/CancelDraft"
)

// AdminServer is implemented by the daemon.
type AdminServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListRetractions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAdminServer attaches srv to a gRPC server.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    unary(methodGetStatus, AdminServer.GetStatus),
		},
		{
			MethodName: "ListRetractions",
			Handler:    unary(methodListRetractions, AdminServer.ListRetractions),
		},
		{
			MethodName: "CancelDraft",
			Handler:    unary(methodCancelDraft, AdminServer.CancelDraft),
		},
	},
	Streams: []grpc.StreamDesc{},
}

func unary[In any, PIn interface {
	*In
	proto.Message
}](fullMethod string, call func(AdminServer, context.Context, PIn) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PIn(new(In))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServer), ctx, req.(PIn))
		}
		return interceptor(ctx, in, info, handler)
	}
}
