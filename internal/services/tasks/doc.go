// Package tasks is the service layer in front of the task queue. It validates
// decoded requests, applies defaults, converts between wire and queue types,
// records runner liveness, and publishes queue gauges. Both the HTTP and gRPC
// servers call into the same Service. Events pages and long-polls the task
// event journal.
//
// Validation failures wrap ErrInvalidArgument; queue failures keep their
// taskqueue sentinels. Code maps any returned error to its wire error code.
package tasks
