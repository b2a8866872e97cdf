package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatsync.v1.ChatService"

// ChatServiceServer is the daemon side of the control API. Requests and
// responses are protobuf well-known types, so no generated code is needed.
type ChatServiceServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Connect(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	JoinRoom(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SendMessage(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	SendGeolocation(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SendImage(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Disconnect(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListRooms(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	WatchEvents(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ChatService_ServiceDesc describes ChatService for grpc.Server.
var ChatService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetState", newEmpty, ChatServiceServer.GetState),
		unaryMethod("Connect", newEmpty, ChatServiceServer.Connect),
		unaryMethod("JoinRoom", newStruct, ChatServiceServer.JoinRoom),
		unaryMethod("SendMessage", newString, ChatServiceServer.SendMessage),
		unaryMethod("SendGeolocation", newStruct, ChatServiceServer.SendGeolocation),
		unaryMethod("SendImage", newStruct, ChatServiceServer.SendImage),
		unaryMethod("Disconnect", newEmpty, ChatServiceServer.Disconnect),
		unaryMethod("ListRooms", newEmpty, ChatServiceServer.ListRooms),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatsync/v1/chat.proto",
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatService_ServiceDesc, srv)
}

func newEmpty() *emptypb.Empty           { return new(emptypb.Empty) }
func newStruct() *structpb.Struct        { return new(structpb.Struct) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unaryMethod[Req, Res proto.Message](name string, newReq func() Req, call func(ChatServiceServer, context.Context, Req) (Res, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).WatchEvents(in, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}

// ChatServiceClient calls the daemon's ChatService.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewChatServiceClient creates a client on cc.
func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, name string, in proto.Message, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	if err := cc.Invoke(ctx, fullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatServiceClient) GetState(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "GetState", &emptypb.Empty{}, opts)
}

func (c *ChatServiceClient) Connect(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "Connect", &emptypb.Empty{}, opts)
}

func (c *ChatServiceClient) JoinRoom(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "JoinRoom", in, opts)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "SendMessage", in, opts)
}

func (c *ChatServiceClient) SendGeolocation(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "SendGeolocation", in, opts)
}

func (c *ChatServiceClient) SendImage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "SendImage", in, opts)
}

func (c *ChatServiceClient) Disconnect(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "Disconnect", &emptypb.Empty{}, opts)
}

func (c *ChatServiceClient) ListRooms(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, "ListRooms", &emptypb.Empty{}, opts)
}

// WatchEvents streams bus events whose kind starts with prefix ("" for all).
func (c *ChatServiceClient) WatchEvents(ctx context.Context, prefix string, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ChatService_ServiceDesc.Streams[0], fullMethod("WatchEvents"), opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := x.SendMsg(wrapperspb.String(prefix)); err != nil {
		return nil, err
	}
	if err := x.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
