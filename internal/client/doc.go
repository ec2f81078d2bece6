// Package client provides signed transports for talking to a runq server
// over HTTP or gRPC. The CLI and the runner loop both use the Transport
// interface, so either wire can back them.
package client
