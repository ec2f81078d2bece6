package tasks

import (
	"context"
	"encoding/json"
	"time"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/runtime"
	"github.com/rzbill/runq/internal/taskqueue"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// MaxSubmitBatch caps how many tasks one submit request may carry.
const MaxSubmitBatch = 1000

// Service exposes task queue and runner registry operations to the transports.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	now    func() time.Time
}

// New creates a tasks service using the runtime's logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, rt.Logger())
}

// NewWithLogger creates a tasks service with a custom logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Service{
		rt:     rt,
		logger: logger.With(logpkg.Component("tasks")),
		now:    time.Now,
	}
}

// Submit validates and enqueues tasks in order.
func (s *Service) Submit(ctx context.Context, in []apiv1.TaskInput) (apiv1.SubmitResponse, error) {
	if len(in) > MaxSubmitBatch {
		return apiv1.SubmitResponse{}, invalid("at most %d tasks per submit", MaxSubmitBatch)
	}
	nts := make([]taskqueue.NewTask, 0, len(in))
	for i, t := range in {
		sel := fromWireSelector(t.Selector)
		if err := taskqueue.ValidateSelector(sel); err != nil {
			return apiv1.SubmitResponse{}, invalid("tasks[%d]: selector: %v", i, err)
		}
		nts = append(nts, taskqueue.NewTask{
			Type:       t.Type,
			Payload:    t.Payload,
			Priority:   t.Priority,
			MaxRetries: t.MaxRetries,
			Selector:   sel,
			ShardKey:   t.ShardKey,
		})
	}

	accepted, err := s.rt.Queue().Submit(ctx, nts)
	if err != nil {
		s.logger.Error("submit failed", logpkg.Err(err))
		return apiv1.SubmitResponse{}, err
	}
	ids := make([]string, 0, len(accepted))
	for _, t := range accepted {
		ids = append(ids, t.ID)
	}
	s.logger.Debug("tasks submitted", logpkg.Int("count", len(ids)))
	return apiv1.SubmitResponse{OK: true, Accepted: len(ids), IDs: ids}, nil
}

// Lease hands out pending tasks to a runner and records the runner as alive.
func (s *Service) Lease(ctx context.Context, req apiv1.LeaseRequest) (apiv1.LeaseResponse, error) {
	if req.RunnerID == "" {
		return apiv1.LeaseResponse{}, invalid("runnerId is required")
	}
	if req.Max < 0 {
		return apiv1.LeaseResponse{}, invalid("max must not be negative")
	}
	if req.LeaseMs < 0 {
		return apiv1.LeaseResponse{}, invalid("leaseMs must not be negative")
	}

	res, err := s.rt.Queue().Lease(ctx, taskqueue.LeaseRequest{
		RunnerID: req.RunnerID,
		Max:      req.Max,
		LeaseMs:  req.LeaseMs,
		Labels:   req.Labels,
	})
	if err != nil {
		s.logger.Error("lease failed", logpkg.Str("runner_id", req.RunnerID), logpkg.Err(err))
		return apiv1.LeaseResponse{}, err
	}
	if _, err := s.rt.Registry().Touch(ctx, req.RunnerID, req.Labels); err != nil {
		s.logger.Warn("runner touch failed", logpkg.Str("runner_id", req.RunnerID), logpkg.Err(err))
	}
	if len(res.Leased) > 0 {
		s.logger.Debug("tasks leased", logpkg.Str("runner_id", req.RunnerID), logpkg.Int("count", len(res.Leased)))
	}
	return apiv1.LeaseResponse{OK: true, Leased: toWireTasks(res.Leased), BackoffMs: res.BackoffMs}, nil
}

// Heartbeat extends a lease.
func (s *Service) Heartbeat(ctx context.Context, req apiv1.HeartbeatRequest) (apiv1.HeartbeatResponse, error) {
	if req.RunnerID == "" || req.LeaseID == "" {
		return apiv1.HeartbeatResponse{}, invalid("runnerId and leaseId are required")
	}
	if req.ExtendMs < 0 {
		return apiv1.HeartbeatResponse{}, invalid("extendMs must not be negative")
	}
	deadline, err := s.rt.Queue().Heartbeat(ctx, req.RunnerID, req.LeaseID, req.ExtendMs)
	if err != nil {
		s.logger.Info("heartbeat rejected", logpkg.Str("runner_id", req.RunnerID), logpkg.Str("lease_id", req.LeaseID), logpkg.Err(err))
		return apiv1.HeartbeatResponse{}, err
	}
	return apiv1.HeartbeatResponse{OK: true, Deadline: deadline}, nil
}

// Result records a runner's outcome for a leased task.
func (s *Service) Result(ctx context.Context, req apiv1.ResultRequest) (apiv1.OKResponse, error) {
	if req.RunnerID == "" || req.LeaseID == "" || req.TaskID == "" {
		return apiv1.OKResponse{}, invalid("runnerId, leaseId and taskId are required")
	}
	// Anything but succeeded ("error", "timeout", ...) counts as a failure.
	status := taskqueue.StatusFailed
	if req.Status == apiv1.StatusSucceeded {
		status = taskqueue.StatusSucceeded
	}
	if len(req.Result) > 0 && !json.Valid(req.Result) {
		return apiv1.OKResponse{}, invalid("result must be valid JSON")
	}
	err := s.rt.Queue().Result(ctx, taskqueue.Report{
		RunnerID: req.RunnerID,
		LeaseID:  req.LeaseID,
		TaskID:   req.TaskID,
		Status:   status,
		Result:   req.Result,
		Error:    req.Error,
	})
	if err != nil {
		s.logger.Info("result rejected",
			logpkg.Str("runner_id", req.RunnerID),
			logpkg.Str("task_id", req.TaskID),
			logpkg.Err(err))
		return apiv1.OKResponse{}, err
	}
	return apiv1.OKResponse{OK: true}, nil
}

// Stats reports per-state counts and refreshes the queue gauges.
func (s *Service) Stats(ctx context.Context) (apiv1.StatsResponse, error) {
	st, err := s.rt.Queue().Stats(ctx)
	if err != nil {
		s.logger.Error("stats failed", logpkg.Err(err))
		return apiv1.StatsResponse{}, err
	}
	s.rt.Metrics().SetQueueStats(st)
	out := apiv1.StatsResponse{OK: true, Stats: make(map[string]int, len(st.ByState)), Total: st.Total, Leases: st.Leases}
	for state, n := range st.ByState {
		out.Stats[string(state)] = n
	}
	return out, nil
}

// RegisterRunner records a runner with its labels and metadata.
func (s *Service) RegisterRunner(ctx context.Context, req apiv1.RegisterRunnerRequest) (apiv1.RegisterRunnerResponse, error) {
	if req.RunnerID == "" {
		return apiv1.RegisterRunnerResponse{}, invalid("runnerId is required")
	}
	rn, err := s.rt.Registry().Register(ctx, req.RunnerID, req.Labels, req.Metadata)
	if err != nil {
		return apiv1.RegisterRunnerResponse{}, err
	}
	s.logger.Info("runner registered", logpkg.Str("runner_id", rn.ID))
	return apiv1.RegisterRunnerResponse{OK: true, Runner: toWireRunner(rn, s.now().UnixMilli())}, nil
}

// ListRunners returns every known runner with its liveness.
func (s *Service) ListRunners(ctx context.Context) (apiv1.ListRunnersResponse, error) {
	runners, err := s.rt.Registry().List(ctx, 0)
	if err != nil {
		return apiv1.ListRunnersResponse{}, err
	}
	nowMs := s.now().UnixMilli()
	out := apiv1.ListRunnersResponse{OK: true, Runners: make([]apiv1.Runner, 0, len(runners))}
	for _, rn := range runners {
		out.Runners = append(out.Runners, toWireRunner(rn, nowMs))
	}
	return out, nil
}
