// Package eventlog implements runq's append-only task event journal.
//
// # Overview
//
// Every lifecycle change the task queue applies (submit, lease, heartbeat,
// outcome, lease expiry) is appended here as one Event. The journal lives in
// the same Pebble instance as the queue snapshot, under its own keyspace:
//   - eventlog/m           (metadata: lastSeq)
//   - eventlog/e/{seq_be8} (entries)
//
// Records are stored as: uvarint headerLen | header | payload | crc32c(header|payload).
// The header carries the event time (8 bytes, big-endian ms) so trims can run
// without decoding payloads; the payload is the JSON-encoded Event.
//
// API surface (internal)
//
//	l, _ := Open(db)
//	seqs, _ := l.Append(ctx, []Event{{At: now, Kind: "submitted", TaskID: id}})
//
//	// Read forward after a cursor, optionally for one task
//	evs, next, _ := l.Read(ReadOptions{Cursor: seqs[0], Limit: 100})
//
//	// Long-poll for appends past a sequence
//	woke := l.WaitForAppend(ctx, next, 5*time.Second)
//
//	// Retention
//	_, _ = l.TrimOlderThan(ctx, cutoffMs, 1024)
//	_, _ = l.TrimToMaxBytes(ctx, maxBytes, 1024)
//
// A Retainer applies both trims on an interval.
package eventlog
