package grpcserver

import (
	"context"
	"encoding/json"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/services/tasks"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// tasksSvc adapts the JSON-in-bytes wire form to the tasks service.
type tasksSvc struct {
	svc *tasks.Service
}

var _ apiv1.TasksServiceServer = (*tasksSvc)(nil)

func (s *tasksSvc) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	batch, err := tasks.DecodeSubmit(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(s.svc.Submit(ctx, batch))
}

func (s *tasksSvc) Lease(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return call(ctx, in, s.svc.Lease)
}

func (s *tasksSvc) Heartbeat(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return call(ctx, in, s.svc.Heartbeat)
}

func (s *tasksSvc) Result(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return call(ctx, in, s.svc.Result)
}

func (s *tasksSvc) Stats(ctx context.Context, _ *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return reply(s.svc.Stats(ctx))
}

func (s *tasksSvc) RegisterRunner(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return call(ctx, in, s.svc.RegisterRunner)
}

func (s *tasksSvc) ListRunners(ctx context.Context, _ *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return reply(s.svc.ListRunners(ctx))
}

func (s *tasksSvc) Events(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return call(ctx, in, s.svc.Events)
}

// call decodes in as Req, invokes fn, and encodes the response.
func call[Req, Resp any](ctx context.Context, in *wrapperspb.BytesValue, fn func(context.Context, Req) (Resp, error)) (*wrapperspb.BytesValue, error) {
	var req Req
	if err := tasks.Decode(in.GetValue(), &req); err != nil {
		return nil, toStatus(err)
	}
	return reply(fn(ctx, req))
}

func reply[Resp any](resp Resp, err error) (*wrapperspb.BytesValue, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return wrapperspb.Bytes(b), nil
}

// toStatus maps a service error to a gRPC status carrying the wire code.
func toStatus(err error) error {
	code := tasks.Code(err)
	msg := err.Error()
	if code == apiv1.CodeInternal {
		msg = "internal error"
	}
	return status.Error(grpcCode(code), msg)
}

func grpcCode(code string) codes.Code {
	switch code {
	case apiv1.CodeUnauthorized:
		return codes.Unauthenticated
	case apiv1.CodeBadRequest:
		return codes.InvalidArgument
	case apiv1.CodeInvalidLease:
		return codes.Aborted
	case apiv1.CodeTaskNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}
