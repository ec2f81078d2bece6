package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rzbill/runq/internal/auth"
	"github.com/rzbill/runq/internal/runtime"
	"github.com/rzbill/runq/internal/server/http/controllers"
	"github.com/rzbill/runq/internal/services/tasks"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// ShutdownTimeout bounds how long in-flight requests get after the serve
// context is cancelled.
const ShutdownTimeout = 5 * time.Second

// Server is the HTTP gateway for the task queue.
type Server struct {
	rt     *runtime.Runtime
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New builds the router. Requests to /tasks and /runners must carry a valid
// signature for v; /healthz and /metrics are open. A nil v disables
// verification.
func New(rt *runtime.Runtime, v *auth.Verifier, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	if v == nil {
		v, _ = auth.NewVerifier(auth.Options{Disabled: true})
	}
	logger = logger.WithComponent("http")
	svc := tasks.NewWithLogger(rt, logger)
	reg := controllers.NewControllerRegistry(rt, svc)

	router := mux.NewRouter()
	router.Use(requestID, tracing, observe(rt.Metrics(), logger))
	reg.RegisterPublicRoutes(router)

	authed := controllers.Wrapper(auth.Middleware(v))
	reg.RegisterTaskRoutes(router, authed)
	reg.RegisterRunnerRoutes(router, authed)

	return &Server{
		rt:     rt,
		logger: logger,
		srv: &http.Server{
			Handler:           cors(router),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the root handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("http server listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(cctx); err != nil {
			s.logger.Warn("http shutdown", logpkg.Err(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound address once serving.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Close stops accepting connections immediately.
func (s *Server) Close() {
	_ = s.srv.Close()
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+auth.HeaderTimestamp+", "+auth.HeaderSignature)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
