package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gatekeeper.v1.Gatekeeper"

// Method names.
const (
	MethodRegister       = "Register"
	MethodLogin          = "Login"
	MethodRefresh        = "Refresh"
	MethodMe             = "Me"
	MethodChangePassword = "ChangePassword"
	MethodMute           = "Mute"
	MethodUnmute         = "Unmute"
	MethodBan            = "Ban"
	MethodUnban          = "Unban"
	MethodChangeRole     = "ChangeRole"
	MethodDeleteAccount  = "DeleteAccount"
)

// FullMethod returns "/gatekeeper.v1.Gatekeeper/<method>".
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// publicMethods do not require a bearer token.
var publicMethods = map[string]bool{
	FullMethod(MethodRegister): true,
	FullMethod(MethodLogin):    true,
	FullMethod(MethodRefresh):  true,
}

// GatekeeperServer is the server API. Every message is a google.protobuf.Struct.
type GatekeeperServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Me(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Mute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unmute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ban(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unban(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeRole(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(GatekeeperServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GatekeeperServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GatekeeperServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Gatekeeper service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatekeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		method(MethodRegister, GatekeeperServer.Register),
		method(MethodLogin, GatekeeperServer.Login),
		method(MethodRefresh, GatekeeperServer.Refresh),
		method(MethodMe, GatekeeperServer.Me),
		method(MethodChangePassword, GatekeeperServer.ChangePassword),
		method(MethodMute, GatekeeperServer.Mute),
		method(MethodUnmute, GatekeeperServer.Unmute),
		method(MethodBan, GatekeeperServer.Ban),
		method(MethodUnban, GatekeeperServer.Unban),
		method(MethodChangeRole, GatekeeperServer.ChangeRole),
		method(MethodDeleteAccount, GatekeeperServer.DeleteAccount),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gatekeeper/v1/gatekeeper.proto",
}

// RegisterGatekeeperServer registers srv on s.
func RegisterGatekeeperServer(s grpc.ServiceRegistrar, srv GatekeeperServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client is a thin unary client for the Gatekeeper service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with in and returns the decoded response.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
