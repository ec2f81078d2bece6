package client

import (
	"context"
	"encoding/json"
	"fmt"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GrpcTransport implements Transport over the runq.v1.TasksService.
type GrpcTransport struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to addr with insecure transport credentials, signing
// calls with secret unless it is empty. Extra dial options are appended.
func DialGRPC(ctx context.Context, addr, secret string, opts ...grpc.DialOption) (*GrpcTransport, error) {
	dopts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if secret != "" {
		dopts = append(dopts, grpc.WithUnaryInterceptor(auth.UnaryClientInterceptor(secret)))
	}
	conn, err := grpc.DialContext(ctx, addr, append(dopts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewGrpcTransport(conn), nil
}

// NewGrpcTransport wraps an existing connection. The transport owns conn.
func NewGrpcTransport(conn *grpc.ClientConn) *GrpcTransport {
	return &GrpcTransport{conn: conn}
}

func (t *GrpcTransport) Submit(ctx context.Context, tasks []apiv1.TaskInput) (apiv1.SubmitResponse, error) {
	var out apiv1.SubmitResponse
	err := t.invoke(ctx, apiv1.TasksServiceSubmitMethod, tasks, &out)
	return out, err
}

func (t *GrpcTransport) Lease(ctx context.Context, req apiv1.LeaseRequest) (apiv1.LeaseResponse, error) {
	var out apiv1.LeaseResponse
	err := t.invoke(ctx, apiv1.TasksServiceLeaseMethod, req, &out)
	return out, err
}

func (t *GrpcTransport) Heartbeat(ctx context.Context, req apiv1.HeartbeatRequest) (apiv1.HeartbeatResponse, error) {
	var out apiv1.HeartbeatResponse
	err := t.invoke(ctx, apiv1.TasksServiceHeartbeatMethod, req, &out)
	return out, err
}

func (t *GrpcTransport) Result(ctx context.Context, req apiv1.ResultRequest) error {
	return t.invoke(ctx, apiv1.TasksServiceResultMethod, req, nil)
}

func (t *GrpcTransport) Stats(ctx context.Context) (apiv1.StatsResponse, error) {
	var out apiv1.StatsResponse
	err := t.invoke(ctx, apiv1.TasksServiceStatsMethod, nil, &out)
	return out, err
}

func (t *GrpcTransport) RegisterRunner(ctx context.Context, req apiv1.RegisterRunnerRequest) (apiv1.RegisterRunnerResponse, error) {
	var out apiv1.RegisterRunnerResponse
	err := t.invoke(ctx, apiv1.TasksServiceRegisterRunnerMethod, req, &out)
	return out, err
}

func (t *GrpcTransport) ListRunners(ctx context.Context) (apiv1.ListRunnersResponse, error) {
	var out apiv1.ListRunnersResponse
	err := t.invoke(ctx, apiv1.TasksServiceListRunnersMethod, nil, &out)
	return out, err
}

func (t *GrpcTransport) Events(ctx context.Context, req apiv1.EventsRequest) (apiv1.EventsResponse, error) {
	var out apiv1.EventsResponse
	err := t.invoke(ctx, apiv1.TasksServiceEventsMethod, req, &out)
	return out, err
}

// Close closes the underlying connection.
func (t *GrpcTransport) Close() error {
	return t.conn.Close()
}

func (t *GrpcTransport) invoke(ctx context.Context, method string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
	}
	resp := new(wrapperspb.BytesValue)
	if err := t.conn.Invoke(ctx, method, wrapperspb.Bytes(body), resp); err != nil {
		return fromStatus(err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.GetValue(), out); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	return nil
}

// fromStatus converts server rejections to APIError and leaves transport
// failures (unavailable, deadline) untouched.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var code string
	switch st.Code() {
	case codes.Unauthenticated:
		code = apiv1.CodeUnauthorized
	case codes.InvalidArgument:
		code = apiv1.CodeBadRequest
	case codes.Aborted:
		code = apiv1.CodeInvalidLease
	case codes.NotFound:
		code = apiv1.CodeTaskNotFound
	case codes.Internal:
		code = apiv1.CodeInternal
	default:
		return err
	}
	return &APIError{Code: code, Message: st.Message()}
}
