package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/client"
)

// fakeTransport serves scripted lease responses and records everything else.
type fakeTransport struct {
	mu         sync.Mutex
	leases     []apiv1.LeaseResponse
	leaseErr   error
	leaseCalls int
	hbErr      error
	heartbeats int
	results    []apiv1.ResultRequest
	registered []apiv1.RegisterRunnerRequest
	onLease    func(n int)
}

var _ client.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Submit(context.Context, []apiv1.TaskInput) (apiv1.SubmitResponse, error) {
	return apiv1.SubmitResponse{}, errors.New("not implemented")
}

func (f *fakeTransport) Lease(_ context.Context, _ apiv1.LeaseRequest) (apiv1.LeaseResponse, error) {
	f.mu.Lock()
	f.leaseCalls++
	n := f.leaseCalls
	var resp apiv1.LeaseResponse
	if len(f.leases) > 0 {
		resp, f.leases = f.leases[0], f.leases[1:]
	} else {
		resp = apiv1.LeaseResponse{OK: true, BackoffMs: 30000}
	}
	err := f.leaseErr
	hook := f.onLease
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return resp, err
}

func (f *fakeTransport) Heartbeat(_ context.Context, req apiv1.HeartbeatRequest) (apiv1.HeartbeatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	if f.hbErr != nil {
		return apiv1.HeartbeatResponse{}, f.hbErr
	}
	return apiv1.HeartbeatResponse{OK: true, Deadline: time.Now().UnixMilli() + 1000}, nil
}

func (f *fakeTransport) Result(_ context.Context, req apiv1.ResultRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, req)
	return nil
}

func (f *fakeTransport) Stats(context.Context) (apiv1.StatsResponse, error) {
	return apiv1.StatsResponse{}, nil
}

func (f *fakeTransport) RegisterRunner(_ context.Context, req apiv1.RegisterRunnerRequest) (apiv1.RegisterRunnerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, req)
	return apiv1.RegisterRunnerResponse{OK: true}, nil
}

func (f *fakeTransport) ListRunners(context.Context) (apiv1.ListRunnersResponse, error) {
	return apiv1.ListRunnersResponse{}, nil
}

func (f *fakeTransport) Events(context.Context, apiv1.EventsRequest) (apiv1.EventsResponse, error) {
	return apiv1.EventsResponse{}, errors.New("not implemented")
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) snapshot() (results []apiv1.ResultRequest, heartbeats int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiv1.ResultRequest(nil), f.results...), f.heartbeats
}

func leased(ids ...string) apiv1.LeaseResponse {
	resp := apiv1.LeaseResponse{OK: true, BackoffMs: 5000}
	for _, id := range ids {
		resp.Leased = append(resp.Leased, apiv1.Task{ID: id, LeaseID: "l-" + id, Type: "t", State: apiv1.StateLeased})
	}
	return resp
}

func newRunner(t *testing.T, tr client.Transport, exec Executor, opts Options) *Runner {
	t.Helper()
	if opts.RunnerID == "" {
		opts.RunnerID = "r1"
	}
	r, err := New(tr, exec, opts)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

func TestNewValidates(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, apiv1.Task) (json.RawMessage, error) { return nil, nil })
	if _, err := New(&fakeTransport{}, exec, Options{}); err == nil {
		t.Fatalf("expected error without runner id")
	}
	if _, err := New(nil, exec, Options{RunnerID: "r"}); err == nil {
		t.Fatalf("expected error without transport")
	}
	r := newRunner(t, &fakeTransport{}, exec, Options{LeaseMs: 3000})
	if r.opts.Max != DefaultMax || r.opts.HeartbeatEvery != time.Second {
		t.Fatalf("defaults: %+v", r.opts)
	}
}

func TestRunOnceReportsOutcomes(t *testing.T) {
	tr := &fakeTransport{leases: []apiv1.LeaseResponse{leased("ok", "bad", "panic")}}
	exec := ExecutorFunc(func(_ context.Context, task apiv1.Task) (json.RawMessage, error) {
		switch task.ID {
		case "bad":
			return nil, errors.New("exit status 1")
		case "panic":
			panic("boom")
		}
		return json.RawMessage(`{"done":true}`), nil
	})
	r := newRunner(t, tr, exec, Options{Max: 3})

	wait, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if wait > 5*time.Second {
		t.Fatalf("wait %v exceeds hint", wait)
	}
	results, _ := tr.snapshot()
	if len(results) != 3 {
		t.Fatalf("results: %+v", results)
	}
	byID := map[string]apiv1.ResultRequest{}
	for _, res := range results {
		byID[res.TaskID] = res
	}
	if got := byID["ok"]; got.Status != apiv1.StatusSucceeded || string(got.Result) != `{"done":true}` || got.LeaseID != "l-ok" {
		t.Fatalf("ok: %+v", got)
	}
	if got := byID["bad"]; got.Status != apiv1.StatusFailed || got.Error != "exit status 1" {
		t.Fatalf("bad: %+v", got)
	}
	if got := byID["panic"]; got.Status != apiv1.StatusFailed || !strings.Contains(got.Error, "boom") {
		t.Fatalf("panic: %+v", got)
	}
}

func TestRunOnceHonorsBackoffCap(t *testing.T) {
	tr := &fakeTransport{}
	exec := ExecutorFunc(func(context.Context, apiv1.Task) (json.RawMessage, error) { return nil, nil })
	r := newRunner(t, tr, exec, Options{MaxBackoff: 10 * time.Second})
	wait, err := r.RunOnce(context.Background())
	if err != nil || wait != 10*time.Second {
		t.Fatalf("empty lease: wait=%v err=%v", wait, err)
	}

	r = newRunner(t, tr, exec, Options{})
	if wait, _ := r.RunOnce(context.Background()); wait != 30*time.Second {
		t.Fatalf("default cap: %v", wait)
	}
}

func TestRunOnceLeaseError(t *testing.T) {
	tr := &fakeTransport{leaseErr: errors.New("connection refused")}
	exec := ExecutorFunc(func(context.Context, apiv1.Task) (json.RawMessage, error) { return nil, nil })
	r := newRunner(t, tr, exec, Options{ErrorBackoff: 250 * time.Millisecond})
	wait, err := r.RunOnce(context.Background())
	if err == nil || wait != 250*time.Millisecond {
		t.Fatalf("wait=%v err=%v", wait, err)
	}
}

func TestHeartbeatsWhileExecuting(t *testing.T) {
	tr := &fakeTransport{leases: []apiv1.LeaseResponse{leased("slow")}}
	exec := ExecutorFunc(func(ctx context.Context, _ apiv1.Task) (json.RawMessage, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return nil, nil
		}
	})
	r := newRunner(t, tr, exec, Options{HeartbeatEvery: 5 * time.Millisecond})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	results, heartbeats := tr.snapshot()
	if heartbeats == 0 {
		t.Fatalf("no heartbeats sent")
	}
	if len(results) != 1 || results[0].Status != apiv1.StatusSucceeded {
		t.Fatalf("results: %+v", results)
	}
}

func TestLostLeaseAbandonsTask(t *testing.T) {
	tr := &fakeTransport{
		leases: []apiv1.LeaseResponse{leased("t1")},
		hbErr:  &client.APIError{Code: apiv1.CodeInvalidLease},
	}
	cancelled := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, _ apiv1.Task) (json.RawMessage, error) {
		select {
		case <-ctx.Done():
			close(cancelled)
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, nil
		}
	})
	r := newRunner(t, tr, exec, Options{HeartbeatEvery: 5 * time.Millisecond})
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Fatalf("executor was not cancelled")
	}
	if results, _ := tr.snapshot(); len(results) != 0 {
		t.Fatalf("abandoned task was reported: %+v", results)
	}
}

func TestRunRegistersAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := &fakeTransport{
		leases: []apiv1.LeaseResponse{leased("a")},
		onLease: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	}
	exec := ExecutorFunc(func(context.Context, apiv1.Task) (json.RawMessage, error) { return nil, nil })
	r := newRunner(t, tr, exec, Options{Labels: []string{"gpu"}, Metadata: map[string]string{"host": "h"}})
	var waits []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.registered) != 1 || tr.registered[0].Labels[0] != "gpu" {
		t.Fatalf("registered: %+v", tr.registered)
	}
	if len(tr.results) != 1 {
		t.Fatalf("results: %+v", tr.results)
	}
	if len(waits) != 2 || waits[1] != 30*time.Second {
		t.Fatalf("waits: %v", waits)
	}
}
