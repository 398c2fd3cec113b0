package anchor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "anchorwatch.v1.AnchorWatchService"

// Full method names, as seen by interceptors and clients.
const (
	DropAnchorMethod    = "/" + ServiceName + "/DropAnchor"
	ResetMethod         = "/" + ServiceName + "/Reset"
	SetSafeRadiusMethod = "/" + ServiceName + "/SetSafeRadius"
	SubmitFixMethod     = "/" + ServiceName + "/SubmitFix"
	GetVerdictMethod    = "/" + ServiceName + "/GetVerdict"
	WatchEventsMethod   = "/" + ServiceName + "/WatchEvents"
)

// AnchorWatchServer is the server API of the anchor watch service.
type AnchorWatchServer interface {
	DropAnchor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reset(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	SetSafeRadius(ctx context.Context, req *wrapperspb.DoubleValue) (*structpb.Struct, error)
	SubmitFix(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetVerdict(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	WatchEvents(req *emptypb.Empty, stream EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(event *structpb.Struct) error
	grpc.ServerStream
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(event *structpb.Struct) error {
	return s.SendMsg(event)
}

// ServiceDesc describes AnchorWatchService for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnchorWatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "DropAnchor",
			Handler: unaryHandler(DropAnchorMethod, newStruct,
				func(s AnchorWatchServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
					return s.DropAnchor(ctx, req)
				}),
		},
		{
			MethodName: "Reset",
			Handler: unaryHandler(ResetMethod, newEmpty,
				func(s AnchorWatchServer, ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error) {
					return s.Reset(ctx, req)
				}),
		},
		{
			MethodName: "SetSafeRadius",
			Handler: unaryHandler(SetSafeRadiusMethod, newDouble,
				func(s AnchorWatchServer, ctx context.Context, req *wrapperspb.DoubleValue) (*structpb.Struct, error) {
					return s.SetSafeRadius(ctx, req)
				}),
		},
		{
			MethodName: "SubmitFix",
			Handler: unaryHandler(SubmitFixMethod, newStruct,
				func(s AnchorWatchServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
					return s.SubmitFix(ctx, req)
				}),
		},
		{
			MethodName: "GetVerdict",
			Handler: unaryHandler(GetVerdictMethod, newEmpty,
				func(s AnchorWatchServer, ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
					return s.GetVerdict(ctx, req)
				}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
}

// RegisterAnchorWatchServer registers srv with registrar.
func RegisterAnchorWatchServer(registrar grpc.ServiceRegistrar, srv AnchorWatchServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func newStruct() *structpb.Struct        { return new(structpb.Struct) }
func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }
func newDouble() *wrapperspb.DoubleValue { return new(wrapperspb.DoubleValue) }

// unaryHandler decodes the request, runs the interceptor chain and calls into srv.
func unaryHandler[Req, Resp any](
	fullMethod string,
	newRequest func() Req,
	call func(AnchorWatchServer, context.Context, Req) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newRequest()
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(AnchorWatchServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(Req)

			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(AnchorWatchServer)

	return server.WatchEvents(in, &eventStream{ServerStream: stream})
}
