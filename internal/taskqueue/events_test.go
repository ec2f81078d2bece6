package taskqueue

import (
	"context"
	"testing"
)

type eventSink struct{ got []Event }

func (s *eventSink) add(evs []Event) { s.got = append(s.got, evs...) }

func (s *eventSink) kinds() []EventKind {
	out := make([]EventKind, 0, len(s.got))
	for _, e := range s.got {
		out = append(out, e.Kind)
	}
	return out
}

func TestEventsFollowLifecycle(t *testing.T) {
	sink := &eventSink{}
	clock := &fakeClock{ms: 1000}
	q := New(NewMemoryStore(), Options{Now: clock.Now, OnEvents: sink.add})
	ctx := context.Background()

	task := submitOne(t, q, NewTask{Type: "build", MaxRetries: intPtr(1)})
	l1 := leaseOne(t, q, LeaseRequest{RunnerID: "r1", LeaseMs: 100})
	if _, err := q.Heartbeat(ctx, "r1", l1.LeaseID, 100); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := q.Result(ctx, Report{RunnerID: "r1", LeaseID: l1.LeaseID, TaskID: task.ID, Status: StatusFailed, Error: "boom"}); err != nil {
		t.Fatalf("result: %v", err)
	}
	l2 := leaseOne(t, q, LeaseRequest{RunnerID: "r2", LeaseMs: 100})
	clock.Advance(101)
	l3 := leaseOne(t, q, LeaseRequest{RunnerID: "r3"})
	if err := q.Result(ctx, Report{RunnerID: "r3", LeaseID: l3.LeaseID, TaskID: task.ID, Status: StatusFailed}); err != nil {
		t.Fatalf("result: %v", err)
	}

	want := []EventKind{EventSubmitted, EventLeased, EventHeartbeat, EventFailed, EventLeased, EventExpired, EventLeased, EventDeadLettered}
	got := sink.kinds()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	for _, e := range sink.got {
		if e.TaskID != task.ID || e.Type != "build" {
			t.Fatalf("event for wrong task: %+v", e)
		}
	}
	if ex := sink.got[5]; ex.LeaseID != l2.LeaseID || ex.RunnerID != "r2" || ex.At != 1101 {
		t.Fatalf("expired event: %+v", ex)
	}
	if f := sink.got[3]; f.Error != "boom" || f.Retries != 1 {
		t.Fatalf("failed event: %+v", f)
	}
}

func TestEventsDroppedWhenSnapshotFails(t *testing.T) {
	sink := &eventSink{}
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	q := New(store, Options{Now: (&fakeClock{ms: 1000}).Now, OnEvents: sink.add})
	ctx := context.Background()

	store.fail = true
	if _, err := q.Submit(ctx, []NewTask{{Type: "x"}}); err == nil {
		t.Fatalf("expected submit to fail")
	}
	if len(sink.got) != 0 {
		t.Fatalf("events delivered for an unpersisted change: %+v", sink.got)
	}
	store.fail = false
	submitOne(t, q, NewTask{Type: "x"})
	if len(sink.got) != 1 || sink.got[0].Kind != EventSubmitted {
		t.Fatalf("events = %+v", sink.got)
	}
}

func TestRejectedCallsEmitNothing(t *testing.T) {
	sink := &eventSink{}
	q := New(NewMemoryStore(), Options{Now: (&fakeClock{ms: 1000}).Now, OnEvents: sink.add})
	if _, err := q.Heartbeat(context.Background(), "r", "nope", 0); err == nil {
		t.Fatalf("expected invalid lease")
	}
	if _, err := q.Stats(context.Background()); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(sink.got) != 0 {
		t.Fatalf("unexpected events: %+v", sink.got)
	}
}
