package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
)

// Snapshot is the full durable state of a queue.
type Snapshot struct {
	Tasks  []Task
	Leases map[string]Lease
}

// Store loads and saves whole-queue snapshots. Save must be atomic: after a
// crash either the previous or the new snapshot is visible, never a mix.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

var (
	queueKey  = []byte("taskqueue/queue")
	leasesKey = []byte("taskqueue/leases")
)

// PebbleStore keeps the task array and lease table as two JSON blobs written
// in a single batch.
type PebbleStore struct {
	db *pebblestore.DB
}

// NewPebbleStore returns a Store backed by db.
func NewPebbleStore(db *pebblestore.DB) *PebbleStore {
	return &PebbleStore{db: db}
}

// Load reads both blobs. A store that has never been written yields an empty snapshot.
func (s *PebbleStore) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Leases: map[string]Lease{}}
	if err := s.getJSON(queueKey, &snap.Tasks); err != nil {
		return Snapshot{}, fmt.Errorf("load queue: %w", err)
	}
	if err := s.getJSON(leasesKey, &snap.Leases); err != nil {
		return Snapshot{}, fmt.Errorf("load leases: %w", err)
	}
	if snap.Leases == nil {
		snap.Leases = map[string]Lease{}
	}
	return snap, nil
}

func (s *PebbleStore) getJSON(key []byte, v any) error {
	b, err := s.db.Get(key)
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Save writes both blobs in one batch.
func (s *PebbleStore) Save(ctx context.Context, snap Snapshot) error {
	qb, ls, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(queueKey, qb, nil); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	if err := batch.Set(leasesKey, ls, nil); err != nil {
		return fmt.Errorf("write leases: %w", err)
	}
	if err := s.db.CommitBatch(ctx, batch); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func encodeSnapshot(snap Snapshot) ([]byte, []byte, error) {
	tasks := snap.Tasks
	if tasks == nil {
		tasks = []Task{}
	}
	leases := snap.Leases
	if leases == nil {
		leases = map[string]Lease{}
	}
	qb, err := json.Marshal(tasks)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal queue: %w", err)
	}
	lb, err := json.Marshal(leases)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal leases: %w", err)
	}
	return qb, lb, nil
}

// MemoryStore keeps encoded snapshots in memory. Saved state is copied, so
// later mutations by the queue do not leak into it.
type MemoryStore struct {
	mu     sync.Mutex
	queue  []byte
	leases []byte
	saves  int
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Leases: map[string]Lease{}}
	if m.queue != nil {
		if err := json.Unmarshal(m.queue, &snap.Tasks); err != nil {
			return Snapshot{}, err
		}
	}
	if m.leases != nil {
		if err := json.Unmarshal(m.leases, &snap.Leases); err != nil {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	qb, lb, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.queue, m.leases = qb, lb
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves reports how many snapshots have been written.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
