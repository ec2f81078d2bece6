package eventlog

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
)

// Read limits.
const (
	DefaultReadLimit = 100
	MaxReadLimit     = 1000
	// maxScan bounds how many entries one filtered read may examine.
	maxScan = 10000
)

// ReadOptions selects a page of the journal.
type ReadOptions struct {
	// Cursor is exclusive: forward reads start after it, reverse reads before
	// it. Zero starts at the oldest entry, or the newest when Reverse is set.
	Cursor  uint64
	Limit   int
	Reverse bool
	// TaskID keeps only events for one task.
	TaskID string
}

// Read returns up to Limit events and the cursor to resume from. The cursor
// is the last examined sequence, which may be past the last returned event
// when TaskID filters entries out. It is zero when nothing was examined.
func (l *Log) Read(opts ReadOptions) ([]Event, uint64, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if limit > MaxReadLimit {
		limit = MaxReadLimit
	}
	low, high := entryBounds()
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	var ok bool
	switch {
	case opts.Reverse && opts.Cursor == 0:
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(KeyEntry(opts.Cursor))
	case opts.Cursor == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(KeyEntry(opts.Cursor + 1))
	}

	events := make([]Event, 0, min(limit, 64))
	var next uint64
	for scanned := 0; ok && len(events) < limit && scanned < maxScan; scanned++ {
		seq := seqOf(iter.Key())
		next = seq
		if dec, valid := DecodeRecord(iter.Value()); valid {
			var e Event
			if err := json.Unmarshal(dec.Payload, &e); err == nil && (opts.TaskID == "" || e.TaskID == opts.TaskID) {
				e.Seq = seq
				events = append(events, e)
			}
		}
		if opts.Reverse {
			ok = iter.Prev()
		} else {
			ok = iter.Next()
		}
	}
	return events, next, nil
}
