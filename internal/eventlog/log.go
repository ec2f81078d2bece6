package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
)

// Event is one recorded task lifecycle change.
type Event struct {
	// Seq is assigned by Append and filled in by Read.
	Seq      uint64 `json:"-"`
	At       int64  `json:"at"`
	Kind     string `json:"kind"`
	TaskID   string `json:"taskId"`
	Type     string `json:"type,omitempty"`
	LeaseID  string `json:"leaseId,omitempty"`
	RunnerID string `json:"runnerId,omitempty"`
	Retries  int    `json:"retries"`
	Deadline int64  `json:"deadline,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Log is the append-only event journal.
type Log struct {
	db *pebblestore.DB

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}
	onTrim   func(deleted int)
}

// Open initializes a Log and loads the last sequence from metadata (if any).
func Open(db *pebblestore.DB) (*Log, error) {
	l := &Log{db: db, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyMeta())
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("eventlog: load meta: %w", err)
	}
	return l, nil
}

// OnTrim registers a callback invoked with the number of entries each trim deletes.
func (l *Log) OnTrim(fn func(deleted int)) {
	l.mu.Lock()
	l.onTrim = fn
	l.mu.Unlock()
}

// LastSeq returns the highest sequence assigned so far.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append writes evs as a single atomic batch and returns their sequences.
func (l *Log) Append(ctx context.Context, evs []Event) ([]uint64, error) {
	if len(evs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	seqs := make([]uint64, len(evs))
	next := l.lastSeq
	for i, e := range evs {
		payload, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("eventlog: encode: %w", err)
		}
		next++
		if err := b.Set(KeyEntry(next), EncodeRecord(timeHeader(e.At), payload), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], next)
	if err := b.Set(KeyMeta(), meta[:], nil); err != nil {
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.lastSeq = next

	// notify waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seqs, nil
}

// WaitForAppend blocks until the log holds a sequence greater than after, the
// timeout elapses, or ctx is done. It reports whether such a sequence exists.
func (l *Log) WaitForAppend(ctx context.Context, after uint64, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		l.mu.Lock()
		last, ch := l.lastSeq, l.notifyCh
		l.mu.Unlock()
		if last > after {
			return true
		}
		select {
		case <-ch:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
