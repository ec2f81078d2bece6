package eventlog

import (
	"context"

	"github.com/cockroachdb/pebble"
)

const defaultTrimBatch = 1024

// TrimOlderThan deletes entries with event time < cutoffMs, oldest first,
// stopping at the first newer entry. Deletes are committed in batches of up
// to batchLimit keys. Returns the number of deleted entries.
func (l *Log) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	low, high := entryBounds()
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	for ok := iter.First(); ok; {
		b := l.db.NewBatch()
		n := 0
		for ok && n < batchLimit {
			dec, okDec := DecodeRecord(iter.Value())
			if okDec {
				if ms, okTs := headerTime(dec.Header); !okTs || ms >= cutoffMs {
					ok = false
					break
				}
			}
			// corrupt entries are dropped along with expired ones
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			n++
			ok = iter.Next()
		}
		if n > 0 {
			if err := l.db.CommitBatch(ctx, b); err != nil {
				b.Close()
				return deleted, err
			}
			deleted += n
		}
		b.Close()
	}
	l.reportTrim(deleted)
	return deleted, nil
}

// TrimToMaxBytes approximates retention by total value bytes.
// If current bytes <= maxBytes, it is a no-op. Otherwise, deletes the oldest entries
// until total bytes <= maxBytes. Batched like TrimOlderThan.
func (l *Log) TrimToMaxBytes(ctx context.Context, maxBytes int64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	if maxBytes < 0 {
		return 0, nil
	}
	low, high := entryBounds()
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var total int64
	for ok := iter.First(); ok; ok = iter.Next() {
		total += int64(len(iter.Value()))
	}
	if total <= maxBytes {
		return 0, nil
	}

	deleted := 0
	for ok := iter.First(); ok && total > maxBytes; {
		b := l.db.NewBatch()
		n := 0
		for ok && n < batchLimit && total > maxBytes {
			total -= int64(len(iter.Value()))
			if err := b.Delete(iter.Key(), nil); err != nil {
				b.Close()
				return deleted, err
			}
			n++
			ok = iter.Next()
		}
		if n > 0 {
			if err := l.db.CommitBatch(ctx, b); err != nil {
				b.Close()
				return deleted, err
			}
			deleted += n
		}
		b.Close()
	}
	l.reportTrim(deleted)
	return deleted, nil
}

func (l *Log) reportTrim(deleted int) {
	if deleted == 0 {
		return
	}
	l.mu.Lock()
	fn := l.onTrim
	l.mu.Unlock()
	if fn != nil {
		fn(deleted)
	}
}
