package tasks

import (
	"errors"
	"fmt"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/auth"
	"github.com/rzbill/runq/internal/taskqueue"
)

// ErrInvalidArgument marks malformed or incomplete requests.
var ErrInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Code maps an error returned by this package to a wire error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrUnauthorized):
		return apiv1.CodeUnauthorized
	case errors.Is(err, ErrInvalidArgument):
		return apiv1.CodeBadRequest
	case errors.Is(err, taskqueue.ErrInvalidLease):
		return apiv1.CodeInvalidLease
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		return apiv1.CodeTaskNotFound
	default:
		return apiv1.CodeInternal
	}
}
