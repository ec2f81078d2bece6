// Package auth verifies replay-protected HMAC request signatures.
//
// A request carries two headers (or gRPC metadata keys):
//
//	x-timestamp: RFC3339, epoch seconds, or epoch milliseconds
//	x-signature: hex(HMAC-SHA256(secret, timestamp + "." + rawBody))
//
// Requests whose timestamp is further than the allowed skew from the server
// clock, or whose signature does not match, are rejected with ErrUnauthorized.
package auth
