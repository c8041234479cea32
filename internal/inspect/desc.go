package inspect

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "atmos.inspect.v1.Inspector"

// ServiceDesc describes the Inspector service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary[emptypb.Empty]("GetStatus", InspectorServer.GetStatus),
		unary[emptypb.Empty]("ListEntities", InspectorServer.ListEntities),
		unary[structpb.Struct]("Analyze", InspectorServer.Analyze),
		unary[structpb.Struct]("AnalyzeEntity", InspectorServer.AnalyzeEntity),
		unary[structpb.Struct]("GetCanister", InspectorServer.GetCanister),
		unary[structpb.Struct]("UpdateCanister", InspectorServer.UpdateCanister),
		unary[structpb.Struct]("Step", InspectorServer.Step),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "atmos/inspect/v1/inspector",
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

func unary[Req any, PReq interface {
	*Req
	proto.Message
}](name string, call func(InspectorServer, context.Context, PReq) (*structpb.Struct, error)) grpc.MethodDesc {
	full := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InspectorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(InspectorServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client calls the Inspector service over conn.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in proto.Message, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", &emptypb.Empty{}, opts...)
}

func (c *Client) ListEntities(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListEntities", &emptypb.Empty{}, opts...)
}

func (c *Client) Analyze(ctx context.Context, x, y int, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"x": x, "y": y})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "Analyze", req, opts...)
}

func (c *Client) AnalyzeEntity(ctx context.Context, entity string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"entity": entity})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "AnalyzeEntity", req, opts...)
}

func (c *Client) GetCanister(ctx context.Context, entity string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]any{"entity": entity})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "GetCanister", req, opts...)
}

// UpdateCanister sends the given controls; see Server.UpdateCanister for
// the recognised keys.
func (c *Client) UpdateCanister(ctx context.Context, entity string, controls map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]any{"entity": entity}
	for k, v := range controls {
		fields[k] = v
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "UpdateCanister", req, opts...)
}

// Step advances the station count steps; dt <= 0 uses the server default.
func (c *Client) Step(ctx context.Context, count int, dt float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]any{"count": count}
	if dt > 0 {
		fields["dt"] = dt
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "Step", req, opts...)
}
