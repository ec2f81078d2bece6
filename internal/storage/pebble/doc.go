// Package pebblestore provides a thin wrapper around Pebble with fsync policy,
// atomic batches, prefix scans, and minimal metrics hooks.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic multi-key updates
//	b := db.NewBatch()
//	_ = b.Set([]byte("queue"), queueBlob, nil)
//	_ = b.Set([]byte("leases"), leaseBlob, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
package pebblestore
