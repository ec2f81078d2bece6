package registry

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

const (
	prefixRunner    = "runners/"
	prefixRunnerIdx = "runners_idx/"
)

// DefaultTTL is used when Options.TTL is zero.
const DefaultTTL = 2 * time.Minute

// ErrRunnerNotFound is returned by Get for unknown runners.
var ErrRunnerNotFound = errors.New("runner not found")

// Runner is a registered runner.
type Runner struct {
	ID           string            `json:"id"`
	Labels       []string          `json:"labels,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredMs int64             `json:"registeredMs"`
	LastSeenMs   int64             `json:"lastSeenMs"`
	ExpiresAtMs  int64             `json:"expiresAtMs"`
}

// Alive reports whether the runner has been seen within its TTL at nowMs.
func (r *Runner) Alive(nowMs int64) bool {
	return r.ExpiresAtMs > nowMs
}

// Options configures a Registry.
type Options struct {
	TTL time.Duration
	Now func() time.Time
}

// Registry stores runner records in Pebble.
type Registry struct {
	db  *pebblestore.DB
	ttl time.Duration
	now func() time.Time

	// serializes read-modify-write of a record and its index entry
	mu sync.Mutex
}

// New creates a Registry over db.
func New(db *pebblestore.DB, opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{db: db, ttl: opts.TTL, now: opts.Now}
}

func runnerKey(id string) []byte {
	return []byte(prefixRunner + id)
}

func runnerIndexKey(expiresAt int64, id string) []byte {
	key := make([]byte, len(prefixRunnerIdx)+8+len(id))
	copy(key, prefixRunnerIdx)
	binary.BigEndian.PutUint64(key[len(prefixRunnerIdx):], uint64(expiresAt))
	copy(key[len(prefixRunnerIdx)+8:], id)
	return key
}

// Register adds or replaces a runner's labels and metadata and refreshes its TTL.
func (r *Registry) Register(ctx context.Context, id string, labels []string, metadata map[string]string) (*Runner, error) {
	return r.upsert(ctx, id, func(rn *Runner) {
		rn.Labels = labels
		rn.Metadata = metadata
	})
}

// Touch refreshes a runner's TTL, creating the record if needed. Non-empty
// labels replace the stored ones.
func (r *Registry) Touch(ctx context.Context, id string, labels []string) (*Runner, error) {
	return r.upsert(ctx, id, func(rn *Runner) {
		if len(labels) > 0 {
			rn.Labels = labels
		}
	})
}

func (r *Registry) upsert(ctx context.Context, id string, apply func(*Runner)) (*Runner, error) {
	if id == "" {
		return nil, errors.New("registry: runner id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UnixMilli()
	existing, err := r.get(id)
	if err != nil && !errors.Is(err, ErrRunnerNotFound) {
		return nil, err
	}
	rn := &Runner{ID: id, RegisteredMs: now}
	if existing != nil {
		*rn = *existing
	}
	apply(rn)
	rn.LastSeenMs = now
	rn.ExpiresAtMs = now + r.ttl.Milliseconds()

	data, err := json.Marshal(rn)
	if err != nil {
		return nil, fmt.Errorf("marshal runner: %w", err)
	}

	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(runnerKey(id), data, nil); err != nil {
		return nil, fmt.Errorf("write runner: %w", err)
	}
	if existing != nil && existing.ExpiresAtMs != rn.ExpiresAtMs {
		if err := batch.Delete(runnerIndexKey(existing.ExpiresAtMs, id), nil); err != nil {
			return nil, fmt.Errorf("delete old runner index: %w", err)
		}
	}
	if err := batch.Set(runnerIndexKey(rn.ExpiresAtMs, id), []byte(id), nil); err != nil {
		return nil, fmt.Errorf("write runner index: %w", err)
	}
	if err := r.db.CommitBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("commit runner: %w", err)
	}
	return rn, nil
}

// Get returns one runner.
func (r *Registry) Get(ctx context.Context, id string) (*Runner, error) {
	return r.get(id)
}

func (r *Registry) get(id string) (*Runner, error) {
	data, err := r.db.Get(runnerKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunnerNotFound)
	}
	if err != nil {
		return nil, err
	}
	var rn Runner
	if err := json.Unmarshal(data, &rn); err != nil {
		return nil, fmt.Errorf("unmarshal runner: %w", err)
	}
	return &rn, nil
}

// List returns up to limit runners ordered by id. limit <= 0 means no limit.
func (r *Registry) List(ctx context.Context, limit int) ([]*Runner, error) {
	var (
		runners []*Runner
		decErr  error
	)
	err := r.db.ScanPrefix([]byte(prefixRunner), func(_, value []byte) bool {
		var rn Runner
		if err := json.Unmarshal(value, &rn); err != nil {
			decErr = fmt.Errorf("unmarshal runner: %w", err)
			return false
		}
		runners = append(runners, &rn)
		return limit <= 0 || len(runners) < limit
	})
	if err != nil {
		return nil, err
	}
	return runners, decErr
}

// Unregister removes a runner. Unknown runners are ignored.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregister(ctx, id)
}

func (r *Registry) unregister(ctx context.Context, id string) error {
	rn, err := r.get(id)
	if errors.Is(err, ErrRunnerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(runnerKey(id), nil); err != nil {
		return fmt.Errorf("delete runner: %w", err)
	}
	if err := batch.Delete(runnerIndexKey(rn.ExpiresAtMs, id), nil); err != nil {
		return fmt.Errorf("delete runner index: %w", err)
	}
	if err := r.db.CommitBatch(ctx, batch); err != nil {
		return fmt.Errorf("commit unregister: %w", err)
	}
	return nil
}

// CleanupExpired removes up to limit runners whose TTL has passed and returns
// how many were removed.
func (r *Registry) CleanupExpired(ctx context.Context, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UnixMilli()
	type indexEntry struct {
		expiresAt int64
		id        string
	}
	var expired []indexEntry
	err := r.db.ScanPrefix([]byte(prefixRunnerIdx), func(key, value []byte) bool {
		if len(key) < len(prefixRunnerIdx)+8 {
			return true
		}
		expiresAt := int64(binary.BigEndian.Uint64(key[len(prefixRunnerIdx):]))
		// index is sorted by expiry
		if expiresAt > now {
			return false
		}
		expired = append(expired, indexEntry{expiresAt: expiresAt, id: string(key[len(prefixRunnerIdx)+8:])})
		return limit <= 0 || len(expired) < limit
	})
	if err != nil {
		return 0, fmt.Errorf("scan runner index: %w", err)
	}

	count := 0
	for _, e := range expired {
		rn, err := r.get(e.id)
		if err != nil && !errors.Is(err, ErrRunnerNotFound) {
			return count, err
		}
		if rn == nil || rn.ExpiresAtMs != e.expiresAt {
			// stale index entry
			if err := r.db.Delete(runnerIndexKey(e.expiresAt, e.id)); err != nil {
				return count, err
			}
			continue
		}
		if err := r.unregister(ctx, e.id); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
