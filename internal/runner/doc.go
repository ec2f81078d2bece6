// Package runner implements the pull loop a worker process runs against the
// queue: lease, execute, heartbeat while executing, report, then wait for the
// server's backoff hint before leasing again.
package runner
