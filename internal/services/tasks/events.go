package tasks

import (
	"context"
	"net/url"
	"strconv"
	"time"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/eventlog"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// MaxEventWait caps how long one events call may long-poll. It stays below
// the default client timeout.
const MaxEventWait = 25 * time.Second

// Events pages through the task event journal. A forward read that finds
// nothing waits up to req.WaitMs for new events.
func (s *Service) Events(ctx context.Context, req apiv1.EventsRequest) (apiv1.EventsResponse, error) {
	l := s.rt.Events()
	if l == nil {
		return apiv1.EventsResponse{}, invalid("event journal is disabled")
	}
	if req.Limit < 0 || req.Limit > eventlog.MaxReadLimit {
		return apiv1.EventsResponse{}, invalid("limit must be between 0 and %d", eventlog.MaxReadLimit)
	}
	if req.WaitMs < 0 {
		return apiv1.EventsResponse{}, invalid("waitMs must not be negative")
	}
	wait := time.Duration(req.WaitMs) * time.Millisecond
	if wait > MaxEventWait {
		wait = MaxEventWait
	}
	deadline := s.now().Add(wait)

	cursor := req.Cursor
	for {
		evs, next, err := l.Read(eventlog.ReadOptions{Cursor: cursor, Limit: req.Limit, Reverse: req.Reverse, TaskID: req.TaskID})
		if err != nil {
			s.logger.Error("events read failed", logpkg.Err(err))
			return apiv1.EventsResponse{}, err
		}
		if next == 0 {
			next = cursor
		}
		if len(evs) > 0 || req.Reverse || wait <= 0 {
			return apiv1.EventsResponse{OK: true, Events: toWireEvents(evs), Next: next}, nil
		}
		remaining := deadline.Sub(s.now())
		if remaining <= 0 || !l.WaitForAppend(ctx, next, remaining) {
			return apiv1.EventsResponse{OK: true, Events: []apiv1.TaskEvent{}, Next: next}, nil
		}
		cursor = next
	}
}

// ParseEventsQuery reads an EventsRequest from GET /tasks/events parameters.
func ParseEventsQuery(q url.Values) (apiv1.EventsRequest, error) {
	var req apiv1.EventsRequest
	var err error
	if v := q.Get("cursor"); v != "" {
		if req.Cursor, err = strconv.ParseUint(v, 10, 64); err != nil {
			return req, invalid("cursor: %v", err)
		}
	}
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil {
			return req, invalid("limit: %v", err)
		}
	}
	if v := q.Get("reverse"); v != "" {
		if req.Reverse, err = strconv.ParseBool(v); err != nil {
			return req, invalid("reverse: %v", err)
		}
	}
	if v := q.Get("waitMs"); v != "" {
		if req.WaitMs, err = strconv.ParseInt(v, 10, 64); err != nil {
			return req, invalid("waitMs: %v", err)
		}
	}
	req.TaskID = q.Get("taskId")
	return req, nil
}
