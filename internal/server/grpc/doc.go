// Package grpcserver hosts the gRPC transport: the runq.v1.TasksService
// (JSON bodies carried in BytesValue, signed like the HTTP gateway) and the
// standard grpc.health.v1 service. TasksService.Events long-polls the task
// event journal the same way GET /tasks/events does.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	v, _ := auth.NewVerifier(auth.Options{Secret: cfg.Auth.Secret})
//	s := grpcserver.New(rt, v, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
