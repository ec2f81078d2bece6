package client

import (
	"context"
	"errors"
	"fmt"

	apiv1 "github.com/rzbill/runq/api/v1"
)

// Transport abstracts the wire used to reach the server (HTTP or gRPC).
type Transport interface {
	Submit(ctx context.Context, tasks []apiv1.TaskInput) (apiv1.SubmitResponse, error)
	Lease(ctx context.Context, req apiv1.LeaseRequest) (apiv1.LeaseResponse, error)
	Heartbeat(ctx context.Context, req apiv1.HeartbeatRequest) (apiv1.HeartbeatResponse, error)
	Result(ctx context.Context, req apiv1.ResultRequest) error
	Stats(ctx context.Context) (apiv1.StatsResponse, error)
	RegisterRunner(ctx context.Context, req apiv1.RegisterRunnerRequest) (apiv1.RegisterRunnerResponse, error)
	ListRunners(ctx context.Context) (apiv1.ListRunnersResponse, error)
	Events(ctx context.Context, req apiv1.EventsRequest) (apiv1.EventsResponse, error)
	Close() error
}

// APIError is a rejection reported by the server.
type APIError struct {
	// Status is the HTTP status, or 0 when the call went over gRPC.
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode returns the wire error code carried by err, or "" when err is not
// an APIError.
func ErrorCode(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsInvalidLease reports whether the server rejected a heartbeat or result
// because the lease is gone or owned by someone else.
func IsInvalidLease(err error) bool {
	return ErrorCode(err) == apiv1.CodeInvalidLease
}
