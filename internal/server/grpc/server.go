package grpcserver

import (
	"context"
	"net"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/auth"
	"github.com/rzbill/runq/internal/runtime"
	"github.com/rzbill/runq/internal/services/tasks"
	logpkg "github.com/rzbill/runq/pkg/log"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	svc    *tasks.Service
	grpc   *grpc.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New constructs a gRPC server and registers the tasks and health services.
// Calls to the tasks service must be signed for v; a nil v disables
// verification. Extra server options are appended after the built-in
// interceptor chain.
func New(rt *runtime.Runtime, v *auth.Verifier, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.WithComponent("grpc")
	if v == nil {
		v, _ = auth.NewVerifier(auth.Options{Disabled: true})
	}
	chain := grpc.ChainUnaryInterceptor(
		observeInterceptor(logger),
		authInterceptor(v),
	)
	s := &Server{
		rt:     rt,
		svc:    tasks.NewWithLogger(rt, logger),
		grpc:   grpc.NewServer(append([]grpc.ServerOption{chain}, opts...)...),
		logger: logger,
	}
	healthpb.RegisterHealthServer(s.grpc, &healthSvc{rt: rt})
	apiv1.RegisterTasksServiceServer(s.grpc, &tasksSvc{svc: s.svc})
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("grpc server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
