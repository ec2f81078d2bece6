// Package runtime wires storage, the task queue, the runner registry and the
// task event journal into a single-node runq instance. It exposes Open/Close, basic health checks, and
// accessors used by the service layer.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	_, _ = rt.Queue().Submit(ctx, []taskqueue.NewTask{{Type: "email"}})
package runtime
