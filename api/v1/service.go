package apiv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TasksServiceName is the fully qualified gRPC service name.
const TasksServiceName = "runq.v1.TasksService"

// Full method names, as seen by interceptors and passed to ClientConn.Invoke.
const (
	TasksServiceSubmitMethod         = "/" + TasksServiceName + "/Submit"
	TasksServiceLeaseMethod          = "/" + TasksServiceName + "/Lease"
	TasksServiceHeartbeatMethod      = "/" + TasksServiceName + "/Heartbeat"
	TasksServiceResultMethod         = "/" + TasksServiceName + "/Result"
	TasksServiceStatsMethod          = "/" + TasksServiceName + "/Stats"
	TasksServiceRegisterRunnerMethod = "/" + TasksServiceName + "/RegisterRunner"
	TasksServiceListRunnersMethod    = "/" + TasksServiceName + "/ListRunners"
	TasksServiceEventsMethod         = "/" + TasksServiceName + "/Events"
)

// TasksServiceServer is implemented by the gRPC transport. Each request and
// response is the JSON form of the matching HTTP body, carried in a
// BytesValue so that the signature covers exactly the same bytes as over HTTP.
type TasksServiceServer interface {
	Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Lease(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Heartbeat(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Result(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Stats(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	RegisterRunner(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	ListRunners(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Events(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// RegisterTasksServiceServer registers srv on s.
func RegisterTasksServiceServer(s grpc.ServiceRegistrar, srv TasksServiceServer) {
	s.RegisterService(&TasksServiceDesc, srv)
}

type bytesMethod func(TasksServiceServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

func unaryHandler(fullMethod string, call bytesMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TasksServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TasksServiceServer), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TasksServiceDesc describes the tasks service for grpc.Server.
var TasksServiceDesc = grpc.ServiceDesc{
	ServiceName: TasksServiceName,
	HandlerType: (*TasksServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: unaryHandler(TasksServiceSubmitMethod, TasksServiceServer.Submit)},
		{MethodName: "Lease", Handler: unaryHandler(TasksServiceLeaseMethod, TasksServiceServer.Lease)},
		{MethodName: "Heartbeat", Handler: unaryHandler(TasksServiceHeartbeatMethod, TasksServiceServer.Heartbeat)},
		{MethodName: "Result", Handler: unaryHandler(TasksServiceResultMethod, TasksServiceServer.Result)},
		{MethodName: "Stats", Handler: unaryHandler(TasksServiceStatsMethod, TasksServiceServer.Stats)},
		{MethodName: "RegisterRunner", Handler: unaryHandler(TasksServiceRegisterRunnerMethod, TasksServiceServer.RegisterRunner)},
		{MethodName: "ListRunners", Handler: unaryHandler(TasksServiceListRunnersMethod, TasksServiceServer.ListRunners)},
		{MethodName: "Events", Handler: unaryHandler(TasksServiceEventsMethod, TasksServiceServer.Events)},
	},
	Streams: []grpc.StreamDesc{},
}
