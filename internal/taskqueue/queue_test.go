package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) Now() time.Time { return time.UnixMilli(c.ms) }

func (c *fakeClock) Advance(ms int64) { c.ms += ms }

func newTestQueue(t *testing.T) (*Queue, *fakeClock, *MemoryStore) {
	t.Helper()
	clock := &fakeClock{ms: 1_000_000}
	store := NewMemoryStore()
	q := New(store, Options{Now: clock.Now})
	return q, clock, store
}

func intPtr(n int) *int { return &n }

func submitOne(t *testing.T, q *Queue, nt NewTask) Task {
	t.Helper()
	out, err := q.Submit(context.Background(), []NewTask{nt})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("want 1 accepted, got %d", len(out))
	}
	return out[0]
}

func leaseOne(t *testing.T, q *Queue, req LeaseRequest) Task {
	t.Helper()
	res, err := q.Lease(context.Background(), req)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(res.Leased) != 1 {
		t.Fatalf("want 1 leased, got %d", len(res.Leased))
	}
	return res.Leased[0]
}

func TestSubmitAssignsUniqueIDsAndPending(t *testing.T) {
	q, clock, store := newTestQueue(t)
	in := make([]NewTask, 50)
	for i := range in {
		in[i] = NewTask{Type: "email", Payload: json.RawMessage(`{"n":1}`)}
	}
	out, err := q.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	seen := make(map[string]bool)
	for _, task := range out {
		if seen[task.ID] {
			t.Fatalf("duplicate id %s", task.ID)
		}
		seen[task.ID] = true
		if task.State != StatePending || task.Retries != 0 {
			t.Fatalf("unexpected task state: %+v", task)
		}
		if task.CreatedAt != clock.ms {
			t.Fatalf("createdAt = %d, want %d", task.CreatedAt, clock.ms)
		}
	}
	if store.Saves() != 1 {
		t.Fatalf("want one snapshot per submit, got %d", store.Saves())
	}
}

func TestSubmitMaxRetriesDefaults(t *testing.T) {
	q, _, _ := newTestQueue(t)
	out, err := q.Submit(context.Background(), []NewTask{
		{Type: "a"},
		{Type: "b", MaxRetries: intPtr(0)},
		{Type: "c", MaxRetries: intPtr(-4)},
		{Type: "d", MaxRetries: intPtr(7)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := []int{3, 0, 3, 7}
	for i, task := range out {
		if task.MaxRetries != want[i] {
			t.Fatalf("task %d maxRetries=%d want %d", i, task.MaxRetries, want[i])
		}
	}
}

func TestLeaseInSubmissionOrderIgnoringPriority(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	first := submitOne(t, q, NewTask{Type: "a", Priority: 1})
	second := submitOne(t, q, NewTask{Type: "b", Priority: 100})

	res, err := q.Lease(context.Background(), LeaseRequest{RunnerID: "r1", Max: 2, LeaseMs: 500})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(res.Leased) != 2 || res.Leased[0].ID != first.ID || res.Leased[1].ID != second.ID {
		t.Fatalf("unexpected lease order: %+v", res.Leased)
	}
	for _, task := range res.Leased {
		if task.State != StateLeased || task.RunnerID != "r1" || task.LeaseID == "" {
			t.Fatalf("leased task fields: %+v", task)
		}
		if task.LeaseDeadline != clock.ms+500 {
			t.Fatalf("deadline %d", task.LeaseDeadline)
		}
	}
	if res.Leased[0].LeaseID == res.Leased[1].LeaseID {
		t.Fatalf("lease ids must be distinct")
	}
}

func TestLeaseBackoffHintsAndBatchCap(t *testing.T) {
	clock := &fakeClock{ms: 5000}
	q := New(NewMemoryStore(), Options{Now: clock.Now, MaxLeaseBatch: 2})
	ctx := context.Background()

	res, err := q.Lease(ctx, LeaseRequest{RunnerID: "r"})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(res.Leased) != 0 || res.BackoffMs != 30000 {
		t.Fatalf("empty lease: %+v", res)
	}

	for i := 0; i < 5; i++ {
		submitOne(t, q, NewTask{Type: "x"})
	}
	res, err = q.Lease(ctx, LeaseRequest{RunnerID: "r", Max: 10})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(res.Leased) != 2 {
		t.Fatalf("batch cap not applied: %d", len(res.Leased))
	}
	if res.BackoffMs != 5000 {
		t.Fatalf("backoff = %d", res.BackoffMs)
	}
}

func TestLeaseDefaultsToOneTaskAndDefaultDuration(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	submitOne(t, q, NewTask{Type: "x"})
	submitOne(t, q, NewTask{Type: "y"})
	task := leaseOne(t, q, LeaseRequest{RunnerID: "r"})
	if task.LeaseDeadline != clock.ms+DefaultLeaseMs {
		t.Fatalf("deadline %d", task.LeaseDeadline)
	}
}

func TestConcurrentLeasesNeverShareATask(t *testing.T) {
	q, _, _ := newTestQueue(t)
	in := make([]NewTask, 200)
	for i := range in {
		in[i] = NewTask{Type: "x"}
	}
	if _, err := q.Submit(context.Background(), in); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]string)
		wg   sync.WaitGroup
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			runner := string(rune('a' + w))
			for {
				res, err := q.Lease(context.Background(), LeaseRequest{RunnerID: runner, Max: 3})
				if err != nil {
					t.Errorf("lease: %v", err)
					return
				}
				if len(res.Leased) == 0 {
					return
				}
				mu.Lock()
				for _, task := range res.Leased {
					if prev, ok := seen[task.ID]; ok {
						t.Errorf("task %s leased by %s and %s", task.ID, prev, runner)
					}
					seen[task.ID] = runner
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	if len(seen) != 200 {
		t.Fatalf("leased %d tasks, want 200", len(seen))
	}
}

func TestFailedResultsDeadLetterAfterMaxRetries(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	task := submitOne(t, q, NewTask{Type: "x", MaxRetries: intPtr(1)})

	l := leaseOne(t, q, LeaseRequest{RunnerID: "runnerA"})
	if err := q.Result(ctx, Report{RunnerID: "runnerA", LeaseID: l.LeaseID, TaskID: task.ID, Status: StatusFailed, Error: "boom"}); err != nil {
		t.Fatalf("result 1: %v", err)
	}
	got, _ := q.Get(ctx, task.ID)
	if got.State != StatePending || got.Retries != 1 {
		t.Fatalf("after first failure: %+v", got)
	}
	if got.LeaseID != "" || got.RunnerID != "" || got.LeaseDeadline != 0 {
		t.Fatalf("lease fields must be cleared: %+v", got)
	}

	l = leaseOne(t, q, LeaseRequest{RunnerID: "runnerA"})
	if err := q.Result(ctx, Report{RunnerID: "runnerA", LeaseID: l.LeaseID, TaskID: task.ID, Status: StatusFailed, Error: "boom again"}); err != nil {
		t.Fatalf("result 2: %v", err)
	}
	got, _ = q.Get(ctx, task.ID)
	if got.State != StateDeadLetter || got.Retries != 2 {
		t.Fatalf("after second failure: %+v", got)
	}
	if got.FinishedAt == 0 || got.Error != "boom again" {
		t.Fatalf("dead-letter fields: %+v", got)
	}

	res, err := q.Lease(ctx, LeaseRequest{RunnerID: "runnerA"})
	if err != nil || len(res.Leased) != 0 {
		t.Fatalf("dead-lettered task must not be leasable: %+v %v", res, err)
	}
}

func TestSucceededResultStoresResult(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()
	task := submitOne(t, q, NewTask{Type: "x"})
	l := leaseOne(t, q, LeaseRequest{RunnerID: "r"})
	clock.Advance(10)
	if err := q.Result(ctx, Report{RunnerID: "r", LeaseID: l.LeaseID, TaskID: task.ID, Status: StatusSucceeded, Result: json.RawMessage(`{"ok":1}`)}); err != nil {
		t.Fatalf("result: %v", err)
	}
	got, _ := q.Get(ctx, task.ID)
	if got.State != StateSucceeded || string(got.Result) != `{"ok":1}` || got.FinishedAt != clock.ms {
		t.Fatalf("succeeded task: %+v", got)
	}
	st, _ := q.Stats(ctx)
	if st.Leases != 0 {
		t.Fatalf("lease must be removed, have %d", st.Leases)
	}
}

func TestExpiredLeaseIsLeasedAgain(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	task := submitOne(t, q, NewTask{Type: "x"})
	first := leaseOne(t, q, LeaseRequest{RunnerID: "r1", LeaseMs: 100})

	clock.Advance(100)
	res, err := q.Lease(context.Background(), LeaseRequest{RunnerID: "r2"})
	if err != nil || len(res.Leased) != 0 {
		t.Fatalf("lease at exact deadline must not reclaim: %+v %v", res, err)
	}

	clock.Advance(1)
	second := leaseOne(t, q, LeaseRequest{RunnerID: "r2"})
	if second.ID != task.ID {
		t.Fatalf("expected same task re-leased")
	}
	if second.LeaseID == first.LeaseID || second.RunnerID != "r2" {
		t.Fatalf("expected fresh lease for r2: %+v", second)
	}

	err = q.Result(context.Background(), Report{RunnerID: "r1", LeaseID: first.LeaseID, TaskID: task.ID, Status: StatusSucceeded})
	if !errors.Is(err, ErrInvalidLease) {
		t.Fatalf("stale lease result: want ErrInvalidLease, got %v", err)
	}
}

func TestHugeLeaseDurationsSaturate(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	task := submitOne(t, q, NewTask{Type: "x"})
	first := leaseOne(t, q, LeaseRequest{RunnerID: "r1", LeaseMs: math.MaxInt64})
	if first.LeaseDeadline != math.MaxInt64 {
		t.Fatalf("deadline = %d, want saturated", first.LeaseDeadline)
	}

	clock.Advance(1000)
	res, err := q.Lease(context.Background(), LeaseRequest{RunnerID: "r2"})
	if err != nil || len(res.Leased) != 0 {
		t.Fatalf("task leased twice: %+v %v", res, err)
	}

	deadline, err := q.Heartbeat(context.Background(), "r1", first.LeaseID, math.MaxInt64-1)
	if err != nil || deadline != math.MaxInt64 {
		t.Fatalf("heartbeat: %d %v", deadline, err)
	}
	clock.Advance(1000)
	err = q.Result(context.Background(), Report{RunnerID: "r1", LeaseID: first.LeaseID, TaskID: task.ID, Status: StatusSucceeded})
	if err != nil {
		t.Fatalf("result after long lease: %v", err)
	}
}

func TestEmptyLeasePersistsSweptLeases(t *testing.T) {
	q, clock, store := newTestQueue(t)
	submitOne(t, q, NewTask{Type: "x", Selector: &Selector{RunnerID: "r1"}})
	leaseOne(t, q, LeaseRequest{RunnerID: "r1", LeaseMs: 10})
	saves := store.Saves()

	clock.Advance(11)
	res, err := q.Lease(context.Background(), LeaseRequest{RunnerID: "r2"})
	if err != nil || len(res.Leased) != 0 || res.BackoffMs != DefaultEmptyBackoffMs {
		t.Fatalf("lease: %+v %v", res, err)
	}
	if store.Saves() != saves+1 {
		t.Fatalf("swept lease not persisted: saves %d -> %d", saves, store.Saves())
	}
	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Leases) != 0 || snap.Tasks[0].State != StatePending {
		t.Fatalf("snapshot: %+v", snap)
	}

	// nothing swept, nothing leased: no write
	if _, err := q.Lease(context.Background(), LeaseRequest{RunnerID: "r2"}); err != nil {
		t.Fatalf("lease: %v", err)
	}
	if store.Saves() != saves+1 {
		t.Fatalf("idle lease wrote a snapshot")
	}
}

func TestSelectorRunnerID(t *testing.T) {
	q, _, _ := newTestQueue(t)
	task := submitOne(t, q, NewTask{Type: "x", Selector: &Selector{RunnerID: "X"}})

	res, err := q.Lease(context.Background(), LeaseRequest{RunnerID: "Y", Max: 10})
	if err != nil || len(res.Leased) != 0 {
		t.Fatalf("runner Y must not lease: %+v %v", res, err)
	}
	got := leaseOne(t, q, LeaseRequest{RunnerID: "X"})
	if got.ID != task.ID {
		t.Fatalf("runner X should lease the task")
	}
}

func TestSelectorLabelsSkipToLaterTasks(t *testing.T) {
	q, _, _ := newTestQueue(t)
	gpu := submitOne(t, q, NewTask{Type: "x", Selector: &Selector{Labels: []string{"gpu"}}})
	plain := submitOne(t, q, NewTask{Type: "y"})

	got := leaseOne(t, q, LeaseRequest{RunnerID: "cpu-box", Labels: []string{"linux"}})
	if got.ID != plain.ID {
		t.Fatalf("cpu runner should skip gpu task, got %s", got.ID)
	}
	got = leaseOne(t, q, LeaseRequest{RunnerID: "gpu-box", Labels: []string{"linux", "gpu"}})
	if got.ID != gpu.ID {
		t.Fatalf("gpu runner should lease gpu task")
	}
}

func TestHeartbeatExtendsDeadline(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()
	task := submitOne(t, q, NewTask{Type: "x"})
	l := leaseOne(t, q, LeaseRequest{RunnerID: "r", LeaseMs: 100})

	clock.Advance(90)
	deadline, err := q.Heartbeat(ctx, "r", l.LeaseID, 1000)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if deadline != clock.ms+1000 {
		t.Fatalf("deadline %d", deadline)
	}
	got, _ := q.Get(ctx, task.ID)
	if got.LeaseDeadline != deadline {
		t.Fatalf("task deadline not kept in sync: %d", got.LeaseDeadline)
	}

	clock.Advance(500)
	if st, _ := q.Stats(ctx); st.ByState[StateLeased] != 1 {
		t.Fatalf("extended lease must survive: %+v", st)
	}

	deadline, err = q.Heartbeat(ctx, "r", l.LeaseID, 0)
	if err != nil || deadline != clock.ms+DefaultLeaseMs {
		t.Fatalf("default extension: %d %v", deadline, err)
	}
}

func TestHeartbeatInvalidLeaseDoesNotMutate(t *testing.T) {
	q, clock, store := newTestQueue(t)
	ctx := context.Background()
	task := submitOne(t, q, NewTask{Type: "x"})
	l := leaseOne(t, q, LeaseRequest{RunnerID: "owner", LeaseMs: 1000})
	saves := store.Saves()

	if _, err := q.Heartbeat(ctx, "intruder", l.LeaseID, 5000); !errors.Is(err, ErrInvalidLease) {
		t.Fatalf("foreign runner: want ErrInvalidLease, got %v", err)
	}
	if _, err := q.Heartbeat(ctx, "owner", "no-such-lease", 5000); !errors.Is(err, ErrInvalidLease) {
		t.Fatalf("unknown lease: want ErrInvalidLease, got %v", err)
	}
	got, _ := q.Get(ctx, task.ID)
	if got.LeaseDeadline != clock.ms+1000 || got.State != StateLeased {
		t.Fatalf("task mutated by rejected heartbeat: %+v", got)
	}
	if store.Saves() != saves {
		t.Fatalf("rejected heartbeat must not persist")
	}

	clock.Advance(1001)
	if _, err := q.Heartbeat(ctx, "owner", l.LeaseID, 5000); !errors.Is(err, ErrInvalidLease) {
		t.Fatalf("expired lease: want ErrInvalidLease, got %v", err)
	}
}

func TestResultRejectsMismatches(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	a := submitOne(t, q, NewTask{Type: "a"})
	b := submitOne(t, q, NewTask{Type: "b"})
	la := leaseOne(t, q, LeaseRequest{RunnerID: "r"})

	cases := []Report{
		{RunnerID: "other", LeaseID: la.LeaseID, TaskID: a.ID, Status: StatusSucceeded},
		{RunnerID: "r", LeaseID: la.LeaseID, TaskID: b.ID, Status: StatusSucceeded},
		{RunnerID: "r", LeaseID: "bogus", TaskID: a.ID, Status: StatusSucceeded},
	}
	for i, rep := range cases {
		if err := q.Result(ctx, rep); !errors.Is(err, ErrInvalidLease) {
			t.Fatalf("case %d: want ErrInvalidLease, got %v", i, err)
		}
	}
	got, _ := q.Get(ctx, a.ID)
	if got.State != StateLeased {
		t.Fatalf("task must still be leased: %+v", got)
	}
}

func TestResultOnTerminalTaskRejected(t *testing.T) {
	q, _, _ := newTestQueue(t)
	ctx := context.Background()
	task := submitOne(t, q, NewTask{Type: "x"})
	l := leaseOne(t, q, LeaseRequest{RunnerID: "r"})
	rep := Report{RunnerID: "r", LeaseID: l.LeaseID, TaskID: task.ID, Status: StatusSucceeded, Result: json.RawMessage(`1`)}
	if err := q.Result(ctx, rep); err != nil {
		t.Fatalf("result: %v", err)
	}
	rep.Result = json.RawMessage(`2`)
	if err := q.Result(ctx, rep); !errors.Is(err, ErrInvalidLease) {
		t.Fatalf("re-report: want ErrInvalidLease, got %v", err)
	}
	got, _ := q.Get(ctx, task.ID)
	if string(got.Result) != "1" {
		t.Fatalf("terminal task mutated: %s", got.Result)
	}
}

func TestResultTaskNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	clock := &fakeClock{ms: 1000}
	err := store.Save(ctx, Snapshot{Leases: map[string]Lease{
		"L1": {TaskID: "ghost", Deadline: 999_999, RunnerID: "r"},
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	q := New(store, Options{Now: clock.Now})
	err = q.Result(ctx, Report{RunnerID: "r", LeaseID: "L1", TaskID: "ghost", Status: StatusSucceeded})
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("want ErrTaskNotFound, got %v", err)
	}
}

func TestStatsSumToTotal(t *testing.T) {
	q, clock, _ := newTestQueue(t)
	ctx := context.Background()

	st, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, s := range AllStates {
		if v, ok := st.ByState[s]; !ok || v != 0 {
			t.Fatalf("empty stats must zero-fill %s: %+v", s, st.ByState)
		}
	}

	for i := 0; i < 6; i++ {
		submitOne(t, q, NewTask{Type: "x", MaxRetries: intPtr(0)})
	}
	ok := leaseOne(t, q, LeaseRequest{RunnerID: "r"})
	_ = q.Result(ctx, Report{RunnerID: "r", LeaseID: ok.LeaseID, TaskID: ok.ID, Status: StatusSucceeded})
	dead := leaseOne(t, q, LeaseRequest{RunnerID: "r"})
	_ = q.Result(ctx, Report{RunnerID: "r", LeaseID: dead.LeaseID, TaskID: dead.ID, Status: StatusFailed})
	leaseOne(t, q, LeaseRequest{RunnerID: "r", LeaseMs: 50})
	leaseOne(t, q, LeaseRequest{RunnerID: "r", LeaseMs: 5000})

	st, _ = q.Stats(ctx)
	sum := 0
	for _, v := range st.ByState {
		sum += v
	}
	if sum != st.Total || st.Total != 6 {
		t.Fatalf("sum %d total %d", sum, st.Total)
	}
	want := map[State]int{StatePending: 2, StateLeased: 2, StateSucceeded: 1, StateDeadLetter: 1}
	for s, n := range want {
		if st.ByState[s] != n {
			t.Fatalf("%s = %d want %d (%+v)", s, st.ByState[s], n, st.ByState)
		}
	}
	if st.Leases != 2 {
		t.Fatalf("leases %d", st.Leases)
	}

	clock.Advance(51)
	st, _ = q.Stats(ctx)
	if st.ByState[StateLeased] != 1 || st.ByState[StatePending] != 3 || st.Leases != 1 {
		t.Fatalf("stats must observe the sweep: %+v leases=%d", st.ByState, st.Leases)
	}
}

func TestStatsDoesNotPersist(t *testing.T) {
	q, clock, store := newTestQueue(t)
	submitOne(t, q, NewTask{Type: "x"})
	leaseOne(t, q, LeaseRequest{RunnerID: "r", LeaseMs: 10})
	saves := store.Saves()
	clock.Advance(11)
	if _, err := q.Stats(context.Background()); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if store.Saves() != saves {
		t.Fatalf("stats wrote a snapshot")
	}
}

func TestPebbleSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	clock := &fakeClock{ms: 10_000}

	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	q := New(NewPebbleStore(db), Options{Now: clock.Now})
	a := submitOne(t, q, NewTask{Type: "a", Payload: json.RawMessage(`{"to":"x@y"}`), ShardKey: "s1"})
	submitOne(t, q, NewTask{Type: "b"})
	l := leaseOne(t, q, LeaseRequest{RunnerID: "r", LeaseMs: 60_000})
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	q = New(NewPebbleStore(db), Options{Now: clock.Now})

	st, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 2 || st.Leases != 1 || st.ByState[StateLeased] != 1 {
		t.Fatalf("reloaded stats: %+v", st)
	}
	got, err := q.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ShardKey != "s1" || string(got.Payload) != `{"to":"x@y"}` || got.LeaseID != l.LeaseID {
		t.Fatalf("reloaded task: %+v", got)
	}
	if err := q.Result(ctx, Report{RunnerID: "r", LeaseID: l.LeaseID, TaskID: a.ID, Status: StatusSucceeded}); err != nil {
		t.Fatalf("result after reload: %v", err)
	}
}

type flakyStore struct {
	*MemoryStore
	fail bool
}

func (s *flakyStore) Save(ctx context.Context, snap Snapshot) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(ctx, snap)
}

func TestFailedSnapshotRestoresDurableState(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	clock := &fakeClock{ms: 1000}
	q := New(store, Options{Now: clock.Now})
	ctx := context.Background()
	task := submitOne(t, q, NewTask{Type: "x"})

	store.fail = true
	if _, err := q.Lease(ctx, LeaseRequest{RunnerID: "r"}); err == nil {
		t.Fatalf("expected lease to fail when snapshot fails")
	}
	if _, err := q.Submit(ctx, []NewTask{{Type: "y"}}); err == nil {
		t.Fatalf("expected submit to fail when snapshot fails")
	}

	store.fail = false
	st, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 1 || st.ByState[StatePending] != 1 || st.Leases != 0 {
		t.Fatalf("state must match last durable snapshot: %+v leases=%d", st.ByState, st.Leases)
	}
	got := leaseOne(t, q, LeaseRequest{RunnerID: "r"})
	if got.ID != task.ID {
		t.Fatalf("expected original task to be leasable")
	}
}
