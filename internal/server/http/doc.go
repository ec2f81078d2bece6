// Package httpserver is the JSON gateway for the task queue.
//
// Routes:
//
//	GET  /healthz
//	GET  /metrics
//	POST /tasks/submit
//	POST /tasks/lease
//	POST /tasks/heartbeat
//	POST /tasks/result
//	GET  /tasks/stats
//	GET  /tasks/events
//	POST /runners/register
//	GET  /runners
//
// Everything under /tasks and /runners requires the x-timestamp and
// x-signature headers described in package auth.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	v, _ := auth.NewVerifier(auth.Options{Secret: cfg.Auth.Secret})
//	s := httpserver.New(rt, v, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
