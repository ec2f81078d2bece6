// Package id provides a 128-bit, lexicographically sortable identifier used
// for task and lease identities.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence],
// rendered as 32 lowercase hex characters. Comparing the hex strings gives the
// same order as comparing the bytes, so task ids sort by creation time.
//
// # Monotonicity
//
// The Generator ensures per-process monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence to avoid going backwards.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next ID.
//
// Usage
//
//	g := id.NewGenerator()
//	taskID := g.NextString()
//	parsed, _ := id.Parse(taskID)
//	created := parsed.Time()
package id
