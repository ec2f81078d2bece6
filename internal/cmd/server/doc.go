// Package serverrun exposes the Run entrypoint used by `runq server start`:
// it opens the store, wires auth, metrics and tracing, starts the HTTP and
// gRPC servers, sweeps expired runners, and shuts everything down in order.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Auth.Secret = os.Getenv("RUNQ_AUTH_SECRET")
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
