// Package registry tracks runners that poll the queue. A runner record is
// created on explicit registration or implicitly on its first lease, and is
// considered alive until its TTL passes without another touch.
//
// Records live in Pebble under runners/{id} with an expiry index under
// runners_idx/{expiresAt}{id} so expired runners can be pruned in order.
package registry
