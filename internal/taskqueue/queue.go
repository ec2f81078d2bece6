package taskqueue

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rzbill/runq/pkg/id"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// Defaults applied when Options leaves a field at zero.
const (
	DefaultLeaseMs         int64 = 60000
	DefaultMaxRetries            = 3
	DefaultMaxLeaseBatch         = 100
	DefaultEmptyBackoffMs  int64 = 30000
	DefaultLeasedBackoffMs int64 = 5000
)

// Options configures a Queue.
type Options struct {
	DefaultLeaseMs    int64
	DefaultMaxRetries int
	MaxLeaseBatch     int
	// EmptyBackoffMs is the polling hint returned when a lease finds nothing.
	EmptyBackoffMs int64
	// LeasedBackoffMs is the polling hint returned when at least one task was leased.
	LeasedBackoffMs int64

	// OnEvents, when set, receives lifecycle events after each operation. It
	// is called with the queue lock held and must not call back into the queue.
	OnEvents func([]Event)

	Now     func() time.Time
	Metrics MetricsHook
	Logger  logpkg.Logger
}

func (o *Options) applyDefaults() {
	if o.DefaultLeaseMs <= 0 {
		o.DefaultLeaseMs = DefaultLeaseMs
	}
	if o.DefaultMaxRetries <= 0 {
		o.DefaultMaxRetries = DefaultMaxRetries
	}
	if o.MaxLeaseBatch <= 0 {
		o.MaxLeaseBatch = DefaultMaxLeaseBatch
	}
	if o.EmptyBackoffMs <= 0 {
		o.EmptyBackoffMs = DefaultEmptyBackoffMs
	}
	if o.LeasedBackoffMs <= 0 {
		o.LeasedBackoffMs = DefaultLeasedBackoffMs
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
}

// Queue owns the task array and lease table. All methods are safe for
// concurrent use; they are serialized by a single mutex.
type Queue struct {
	store Store
	opts  Options
	ids   *id.Generator
	sel   *programCache
	log   logpkg.Logger

	mu     sync.Mutex
	loaded bool
	tasks  []Task
	index  map[string]int
	leases map[string]Lease
	events []Event
}

// New creates a queue over store. State is loaded from store on first use.
func New(store Store, opts Options) *Queue {
	opts.applyDefaults()
	return &Queue{
		store: store,
		opts:  opts,
		ids:   id.NewGenerator(),
		sel:   newProgramCache(),
		log:   opts.Logger.With(logpkg.Component("taskqueue")),
	}
}

// hydrate loads the last snapshot if the in-memory state is not current.
func (q *Queue) hydrate(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	snap, err := q.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	q.tasks = snap.Tasks
	q.leases = snap.Leases
	if q.leases == nil {
		q.leases = make(map[string]Lease)
	}
	q.index = make(map[string]int, len(q.tasks))
	for i := range q.tasks {
		q.index[q.tasks[i].ID] = i
		q.observeID(q.tasks[i].ID)
	}
	for leaseID := range q.leases {
		q.observeID(leaseID)
	}
	q.loaded = true
	q.log.Debug("queue hydrated", logpkg.Int("tasks", len(q.tasks)), logpkg.Int("leases", len(q.leases)))
	return nil
}

func (q *Queue) observeID(s string) {
	if v, err := id.Parse(s); err == nil {
		q.ids.Observe(v)
	}
}

// begin hydrates and sweeps. Callers must hold q.mu.
func (q *Queue) begin(ctx context.Context) (int64, int, error) {
	if err := q.hydrate(ctx); err != nil {
		return 0, 0, err
	}
	nowMs := q.opts.Now().UnixMilli()
	expired := sweepExpired(q.tasks, q.index, q.leases, nowMs)
	if len(expired) == 0 {
		return nowMs, 0, nil
	}
	for _, ex := range expired {
		e := Event{At: nowMs, Kind: EventExpired, TaskID: ex.TaskID, LeaseID: ex.LeaseID, RunnerID: ex.RunnerID, Deadline: ex.Deadline}
		if i, ok := q.index[ex.TaskID]; ok {
			e.Type = q.tasks[i].Type
			e.Retries = q.tasks[i].Retries
		}
		q.emit(e)
	}
	q.opts.Metrics.ObserveReclaimed(len(expired))
	q.log.Info("reclaimed expired leases", logpkg.Int("count", len(expired)))
	return nowMs, len(expired), nil
}

// deadlineAfter returns nowMs+ms, saturating at math.MaxInt64.
func deadlineAfter(nowMs, ms int64) int64 {
	if ms > math.MaxInt64-nowMs {
		return math.MaxInt64
	}
	return nowMs + ms
}

// persist writes a full snapshot. On failure the in-memory state is dropped
// so the next call reloads the last durable snapshot.
func (q *Queue) persist(ctx context.Context) error {
	start := time.Now()
	err := q.store.Save(ctx, Snapshot{Tasks: q.tasks, Leases: q.leases})
	q.opts.Metrics.ObserveSnapshot(time.Since(start), err)
	if err != nil {
		q.loaded = false
		q.tasks, q.index, q.leases, q.events = nil, nil, nil, nil
		q.log.Error("snapshot write failed; state will be reloaded", logpkg.Err(err))
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Submit appends tasks in order and returns them as stored.
func (q *Queue) Submit(ctx context.Context, in []NewTask) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.flushEvents()
	nowMs, _, err := q.begin(ctx)
	if err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return []Task{}, nil
	}
	for _, nt := range in {
		maxRetries := q.opts.DefaultMaxRetries
		if nt.MaxRetries != nil && *nt.MaxRetries >= 0 {
			maxRetries = *nt.MaxRetries
		}
		t := Task{
			ID:         q.ids.NextString(),
			Type:       nt.Type,
			Payload:    nt.Payload,
			Priority:   nt.Priority,
			MaxRetries: maxRetries,
			State:      StatePending,
			Selector:   nt.Selector,
			ShardKey:   nt.ShardKey,
			CreatedAt:  nowMs,
		}
		q.index[t.ID] = len(q.tasks)
		q.tasks = append(q.tasks, t)
		q.emit(Event{At: nowMs, Kind: EventSubmitted, TaskID: t.ID, Type: t.Type})
	}
	accepted := append([]Task(nil), q.tasks[len(q.tasks)-len(in):]...)
	if err := q.persist(ctx); err != nil {
		return nil, err
	}
	q.opts.Metrics.ObserveSubmitted(len(accepted))
	return accepted, nil
}

// Lease claims up to req.Max pending tasks the runner is allowed to take, in
// submission order.
func (q *Queue) Lease(ctx context.Context, req LeaseRequest) (LeaseResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.flushEvents()
	nowMs, swept, err := q.begin(ctx)
	if err != nil {
		return LeaseResult{}, err
	}
	limit := req.Max
	if limit <= 0 {
		limit = 1
	}
	if limit > q.opts.MaxLeaseBatch {
		limit = q.opts.MaxLeaseBatch
	}
	leaseMs := req.LeaseMs
	if leaseMs <= 0 {
		leaseMs = q.opts.DefaultLeaseMs
	}
	deadline := deadlineAfter(nowMs, leaseMs)

	leased := make([]Task, 0, limit)
	for i := range q.tasks {
		if len(leased) == limit {
			break
		}
		t := &q.tasks[i]
		if t.State != StatePending || !q.sel.matches(t.Selector, req.RunnerID, req.Labels) {
			continue
		}
		if err := transition(t, StateLeased); err != nil {
			return LeaseResult{}, err
		}
		leaseID := q.ids.NextString()
		t.LeaseID = leaseID
		t.LeaseDeadline = deadline
		t.RunnerID = req.RunnerID
		q.leases[leaseID] = Lease{TaskID: t.ID, Deadline: deadline, RunnerID: req.RunnerID}
		leased = append(leased, *t)
		q.emit(Event{At: nowMs, Kind: EventLeased, TaskID: t.ID, Type: t.Type, LeaseID: leaseID, RunnerID: req.RunnerID, Retries: t.Retries, Deadline: deadline})
	}

	if len(leased) == 0 && swept == 0 {
		return LeaseResult{Leased: leased, BackoffMs: q.opts.EmptyBackoffMs}, nil
	}
	if err := q.persist(ctx); err != nil {
		return LeaseResult{}, err
	}
	if len(leased) == 0 {
		return LeaseResult{Leased: leased, BackoffMs: q.opts.EmptyBackoffMs}, nil
	}
	q.opts.Metrics.ObserveLeased(len(leased))
	return LeaseResult{Leased: leased, BackoffMs: q.opts.LeasedBackoffMs}, nil
}

// Heartbeat extends a lease held by runnerID and returns the new deadline.
// extendMs <= 0 extends by the default lease duration.
func (q *Queue) Heartbeat(ctx context.Context, runnerID, leaseID string, extendMs int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.flushEvents()
	nowMs, _, err := q.begin(ctx)
	if err != nil {
		return 0, err
	}
	l, ok := q.leases[leaseID]
	if !ok || l.RunnerID != runnerID {
		return 0, fmt.Errorf("heartbeat %s: %w", leaseID, ErrInvalidLease)
	}
	if extendMs <= 0 {
		extendMs = q.opts.DefaultLeaseMs
	}
	deadline := deadlineAfter(nowMs, extendMs)
	l.Deadline = deadline
	q.leases[leaseID] = l
	e := Event{At: nowMs, Kind: EventHeartbeat, TaskID: l.TaskID, LeaseID: leaseID, RunnerID: runnerID, Deadline: deadline}
	if i, ok := q.index[l.TaskID]; ok {
		q.tasks[i].LeaseDeadline = deadline
		e.Type = q.tasks[i].Type
		e.Retries = q.tasks[i].Retries
	}
	q.emit(e)
	if err := q.persist(ctx); err != nil {
		return 0, err
	}
	return deadline, nil
}

// Result records the outcome of a leased task and releases its lease. Failed
// outcomes consume one retry; a task that runs out of retries is dead-lettered.
func (q *Queue) Result(ctx context.Context, r Report) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.flushEvents()
	nowMs, _, err := q.begin(ctx)
	if err != nil {
		return err
	}
	l, ok := q.leases[r.LeaseID]
	if !ok || l.RunnerID != r.RunnerID || l.TaskID != r.TaskID {
		return fmt.Errorf("result %s: %w", r.LeaseID, ErrInvalidLease)
	}
	i, ok := q.index[r.TaskID]
	if !ok {
		return fmt.Errorf("result %s: %w", r.TaskID, ErrTaskNotFound)
	}
	t := &q.tasks[i]

	var to State
	switch {
	case r.Status == StatusSucceeded:
		to = StateSucceeded
	case t.Retries+1 > t.MaxRetries:
		to = StateDeadLetter
	default:
		to = StatePending
	}
	if err := transition(t, to); err != nil {
		return err
	}
	switch to {
	case StateSucceeded:
		t.FinishedAt = nowMs
		t.Result = r.Result
	case StateDeadLetter:
		t.Retries++
		t.FinishedAt = nowMs
		t.Error = r.Error
	default:
		t.Retries++
		t.Error = r.Error
	}
	t.clearLease()
	delete(q.leases, r.LeaseID)
	q.emit(Event{At: nowMs, Kind: outcomeEvent(to), TaskID: t.ID, Type: t.Type, LeaseID: r.LeaseID, RunnerID: r.RunnerID, Retries: t.Retries, Error: r.Error})

	if err := q.persist(ctx); err != nil {
		return err
	}
	q.opts.Metrics.ObserveOutcome(to)
	if to == StateDeadLetter {
		q.log.Warn("task dead-lettered",
			logpkg.Str("task_id", r.TaskID),
			logpkg.Int("retries", t.Retries),
			logpkg.Str("error", r.Error))
	}
	return nil
}

// Stats counts tasks per state. Expired leases are swept in memory first; the
// sweep itself is not persisted.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.flushEvents()
	if _, _, err := q.begin(ctx); err != nil {
		return Stats{}, err
	}
	st := Stats{ByState: make(map[State]int, len(AllStates)), Total: len(q.tasks), Leases: len(q.leases)}
	for _, s := range AllStates {
		st.ByState[s] = 0
	}
	for i := range q.tasks {
		st.ByState[q.tasks[i].State]++
	}
	return st, nil
}

// Get returns a copy of one task.
func (q *Queue) Get(ctx context.Context, taskID string) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.flushEvents()
	if _, _, err := q.begin(ctx); err != nil {
		return Task{}, err
	}
	i, ok := q.index[taskID]
	if !ok {
		return Task{}, fmt.Errorf("get %s: %w", taskID, ErrTaskNotFound)
	}
	return q.tasks[i], nil
}

func outcomeEvent(to State) EventKind {
	switch to {
	case StateSucceeded:
		return EventSucceeded
	case StateDeadLetter:
		return EventDeadLettered
	default:
		return EventFailed
	}
}
