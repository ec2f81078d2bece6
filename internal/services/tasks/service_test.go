package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/auth"
	cfgpkg "github.com/rzbill/runq/internal/config"
	"github.com/rzbill/runq/internal/runtime"
	pebblestore "github.com/rzbill/runq/internal/storage/pebble"
	"github.com/rzbill/runq/internal/taskqueue"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt)
}

func TestDecodeSubmit(t *testing.T) {
	one, err := DecodeSubmit([]byte(` {"type":"email","payload":{"to":"a"}}`))
	if err != nil || len(one) != 1 || one[0].Type != "email" {
		t.Fatalf("single: %+v %v", one, err)
	}
	many, err := DecodeSubmit([]byte("\n[{\"type\":\"a\"},{\"type\":\"b\",\"maxRetries\":0}]"))
	if err != nil || len(many) != 2 {
		t.Fatalf("array: %+v %v", many, err)
	}
	if many[1].MaxRetries == nil || *many[1].MaxRetries != 0 {
		t.Fatalf("explicit zero maxRetries lost")
	}
	for _, bad := range []string{"", "   ", "{", "[1,2]"} {
		if _, err := DecodeSubmit([]byte(bad)); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%q: want ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   []apiv1.TaskInput
	}{
		{name: "bad selector expr", in: []apiv1.TaskInput{{Type: "x", Selector: &apiv1.Selector{Expr: "labels"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, tc.in); Code(err) != apiv1.CodeBadRequest {
				t.Fatalf("want bad-request, got %v", err)
			}
		})
	}
}

func TestSubmitAcceptsEmptyBatchAndMissingType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, []apiv1.TaskInput{})
	if err != nil || !sub.OK || sub.Accepted != 0 || len(sub.IDs) != 0 {
		t.Fatalf("empty batch: %+v %v", sub, err)
	}
	sub, err = svc.Submit(ctx, []apiv1.TaskInput{{Payload: json.RawMessage(`{"n":1}`)}})
	if err != nil || sub.Accepted != 1 {
		t.Fatalf("untyped task: %+v %v", sub, err)
	}
	lease, err := svc.Lease(ctx, apiv1.LeaseRequest{RunnerID: "r1"})
	if err != nil || len(lease.Leased) != 1 || lease.Leased[0].Type != "" {
		t.Fatalf("lease: %+v %v", lease, err)
	}
}

func TestResultWithOtherStatusConsumesRetry(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	zero := 0
	if _, err := svc.Submit(ctx, []apiv1.TaskInput{{Type: "x", MaxRetries: &zero}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	lease, err := svc.Lease(ctx, apiv1.LeaseRequest{RunnerID: "r1"})
	if err != nil || len(lease.Leased) != 1 {
		t.Fatalf("lease: %+v %v", lease, err)
	}
	task := lease.Leased[0]
	if _, err := svc.Result(ctx, apiv1.ResultRequest{RunnerID: "r1", LeaseID: task.LeaseID, TaskID: task.ID, Status: "timeout", Error: "took too long"}); err != nil {
		t.Fatalf("result: %v", err)
	}
	st, err := svc.Stats(ctx)
	if err != nil || st.Stats[apiv1.StateDeadLetter] != 1 || st.Leases != 0 {
		t.Fatalf("stats: %+v %v", st, err)
	}
}

func TestSubmitLeaseResultFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, []apiv1.TaskInput{
		{Type: "a", Payload: json.RawMessage(`{"n":1}`)},
		{Type: "b", Selector: &apiv1.Selector{}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.OK || sub.Accepted != 2 || len(sub.IDs) != 2 {
		t.Fatalf("submit response: %+v", sub)
	}

	lease, err := svc.Lease(ctx, apiv1.LeaseRequest{RunnerID: "r1", Max: 5, Labels: []string{"linux"}})
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(lease.Leased) != 2 || lease.BackoffMs != 5000 {
		t.Fatalf("lease response: %+v", lease)
	}
	if lease.Leased[1].Selector != nil {
		t.Fatalf("empty selector should be dropped")
	}
	if lease.Leased[0].State != apiv1.StateLeased || string(lease.Leased[0].Payload) != `{"n":1}` {
		t.Fatalf("leased task: %+v", lease.Leased[0])
	}

	runners, err := svc.ListRunners(ctx)
	if err != nil || len(runners.Runners) != 1 || runners.Runners[0].ID != "r1" || !runners.Runners[0].Alive {
		t.Fatalf("lease must register runner: %+v %v", runners, err)
	}

	hb, err := svc.Heartbeat(ctx, apiv1.HeartbeatRequest{RunnerID: "r1", LeaseID: lease.Leased[0].LeaseID, ExtendMs: 1000})
	if err != nil || !hb.OK || hb.Deadline == 0 {
		t.Fatalf("heartbeat: %+v %v", hb, err)
	}

	first := lease.Leased[0]
	if _, err := svc.Result(ctx, apiv1.ResultRequest{RunnerID: "r1", LeaseID: first.LeaseID, TaskID: first.ID, Status: "succeeded", Result: json.RawMessage(`"done"`)}); err != nil {
		t.Fatalf("result: %v", err)
	}
	_, err = svc.Result(ctx, apiv1.ResultRequest{RunnerID: "r1", LeaseID: first.LeaseID, TaskID: first.ID, Status: "succeeded"})
	if Code(err) != apiv1.CodeInvalidLease {
		t.Fatalf("re-report: want invalid-lease, got %v", err)
	}

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 2 || st.Stats["succeeded"] != 1 || st.Stats["leased"] != 1 || st.Stats["dead-letter"] != 0 {
		t.Fatalf("stats: %+v", st)
	}
	if _, ok := st.Stats["pending"]; !ok {
		t.Fatalf("stats must include every state: %+v", st.Stats)
	}
}

func TestRequestValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	checks := map[string]error{}
	_, checks["lease without runner"] = svc.Lease(ctx, apiv1.LeaseRequest{})
	_, checks["lease negative max"] = svc.Lease(ctx, apiv1.LeaseRequest{RunnerID: "r", Max: -1})
	_, checks["heartbeat without lease"] = svc.Heartbeat(ctx, apiv1.HeartbeatRequest{RunnerID: "r"})
	_, checks["result without task"] = svc.Result(ctx, apiv1.ResultRequest{RunnerID: "r", LeaseID: "l"})
	_, checks["result bad json"] = svc.Result(ctx, apiv1.ResultRequest{RunnerID: "r", LeaseID: "l", TaskID: "t", Status: "failed", Result: json.RawMessage(`{`)})
	_, checks["register without id"] = svc.RegisterRunner(ctx, apiv1.RegisterRunnerRequest{})
	for name, err := range checks {
		if Code(err) != apiv1.CodeBadRequest {
			t.Errorf("%s: want bad-request, got %v", name, err)
		}
	}
}

func TestRegisterRunner(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.RegisterRunner(context.Background(), apiv1.RegisterRunnerRequest{
		RunnerID: "gpu-1",
		Labels:   []string{"gpu"},
		Metadata: map[string]string{"host": "box"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !resp.OK || resp.Runner.ID != "gpu-1" || !resp.Runner.Alive || resp.Runner.Metadata["host"] != "box" {
		t.Fatalf("register response: %+v", resp)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", auth.ErrUnauthorized), apiv1.CodeUnauthorized},
		{invalid("nope"), apiv1.CodeBadRequest},
		{fmt.Errorf("hb: %w", taskqueue.ErrInvalidLease), apiv1.CodeInvalidLease},
		{fmt.Errorf("r: %w", taskqueue.ErrTaskNotFound), apiv1.CodeTaskNotFound},
		{errors.New("disk on fire"), apiv1.CodeInternal},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.want {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
