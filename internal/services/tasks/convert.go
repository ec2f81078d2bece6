package tasks

import (
	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/eventlog"
	"github.com/rzbill/runq/internal/registry"
	"github.com/rzbill/runq/internal/taskqueue"
)

func toWireTask(t taskqueue.Task) apiv1.Task {
	out := apiv1.Task{
		ID:            t.ID,
		Type:          t.Type,
		Payload:       t.Payload,
		Priority:      t.Priority,
		MaxRetries:    t.MaxRetries,
		Retries:       t.Retries,
		State:         string(t.State),
		ShardKey:      t.ShardKey,
		LeaseID:       t.LeaseID,
		LeaseDeadline: t.LeaseDeadline,
		RunnerID:      t.RunnerID,
		CreatedAt:     t.CreatedAt,
		FinishedAt:    t.FinishedAt,
		Result:        t.Result,
		Error:         t.Error,
	}
	if t.Selector != nil {
		out.Selector = &apiv1.Selector{RunnerID: t.Selector.RunnerID, Labels: t.Selector.Labels, Expr: t.Selector.Expr}
	}
	return out
}

func toWireTasks(ts []taskqueue.Task) []apiv1.Task {
	out := make([]apiv1.Task, 0, len(ts))
	for _, t := range ts {
		out = append(out, toWireTask(t))
	}
	return out
}

func fromWireSelector(s *apiv1.Selector) *taskqueue.Selector {
	if s == nil {
		return nil
	}
	if s.RunnerID == "" && len(s.Labels) == 0 && s.Expr == "" {
		return nil
	}
	return &taskqueue.Selector{RunnerID: s.RunnerID, Labels: s.Labels, Expr: s.Expr}
}

func toWireRunner(r *registry.Runner, nowMs int64) apiv1.Runner {
	return apiv1.Runner{
		ID:           r.ID,
		Labels:       r.Labels,
		Metadata:     r.Metadata,
		RegisteredAt: r.RegisteredMs,
		LastSeenAt:   r.LastSeenMs,
		Alive:        r.Alive(nowMs),
	}
}

func toWireEvents(evs []eventlog.Event) []apiv1.TaskEvent {
	out := make([]apiv1.TaskEvent, 0, len(evs))
	for _, e := range evs {
		out = append(out, apiv1.TaskEvent{
			Seq:      e.Seq,
			At:       e.At,
			Kind:     e.Kind,
			TaskID:   e.TaskID,
			Type:     e.Type,
			LeaseID:  e.LeaseID,
			RunnerID: e.RunnerID,
			Retries:  e.Retries,
			Deadline: e.Deadline,
			Error:    e.Error,
		})
	}
	return out
}
