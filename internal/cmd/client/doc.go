// Package client provides the `runq` command-line client.
//
// The CLI talks to the runq HTTP or gRPC endpoints to submit and inspect
// tasks, manage runners, and run a shell-backed worker from a terminal.
//
// # Address configuration
//
// The HTTP base URL comes from --server or RUNQ_SERVER (default
// http://127.0.0.1:8080). The gRPC address comes from --grpc or RUNQ_GRPC
// (default 127.0.0.1:9090). --transport (RUNQ_TRANSPORT) selects http or
// grpc. Requests are signed with --secret (RUNQ_AUTH_SECRET).
//
// Usage
//
//	runq tasks submit --type email --payload '{"to":"a@example.com"}'
//	runq tasks submit --type build --label linux --label arm64
//	runq tasks submit --type build --expr '"gpu" in labels'
//	runq tasks submit --file batch.json
//
//	runq tasks lease --runner-id w1 --max 5 --label linux
//	runq tasks heartbeat --runner-id w1 --lease-id L --extend-ms 60000
//	runq tasks result --runner-id w1 --lease-id L --task-id T --result '{"ok":1}'
//	runq tasks result --runner-id w1 --lease-id L --task-id T --status failed --error boom
//	runq tasks stats
//	runq tasks events --task-id T
//	runq tasks events --follow
//
//	runq runners register --runner-id w1 --label linux --meta zone=eu-1
//	runq runners list
//
//	# Lease and execute until interrupted
//	runq runner run --runner-id w1 --label linux --exec './handle.sh'
//
// Notes
//
//   - JSON flags (--payload, --result) accept inline JSON, @file or @- for stdin.
//   - Output is the server's JSON response, indented.
package client
