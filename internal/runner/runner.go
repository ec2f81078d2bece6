package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/client"
	logpkg "github.com/rzbill/runq/pkg/log"
)

// Defaults applied by New.
const (
	DefaultMax          = 1
	DefaultLeaseMs      = 60000
	DefaultMaxBackoff   = 30 * time.Second
	DefaultErrorBackoff = time.Second
)

// Executor runs a single task. A non-nil error reports the task as failed.
type Executor interface {
	Execute(ctx context.Context, task apiv1.Task) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task apiv1.Task) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, task apiv1.Task) (json.RawMessage, error) {
	return f(ctx, task)
}

// Options configures a Runner.
type Options struct {
	RunnerID string
	Labels   []string
	Metadata map[string]string
	// Max is the number of tasks requested per lease call; they run concurrently.
	Max     int
	LeaseMs int64
	// HeartbeatEvery defaults to a third of the lease.
	HeartbeatEvery time.Duration
	// MaxBackoff caps the server's backoff hint.
	MaxBackoff time.Duration
	// ErrorBackoff is the wait after a failed lease call.
	ErrorBackoff time.Duration
	Logger       logpkg.Logger
}

// Runner pulls and executes tasks until its context ends.
type Runner struct {
	tr     client.Transport
	exec   Executor
	opts   Options
	logger logpkg.Logger
	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates opts and applies defaults.
func New(tr client.Transport, exec Executor, opts Options) (*Runner, error) {
	if tr == nil || exec == nil {
		return nil, errors.New("runner: transport and executor are required")
	}
	if opts.RunnerID == "" {
		return nil, errors.New("runner: runner id is required")
	}
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	if opts.LeaseMs <= 0 {
		opts.LeaseMs = DefaultLeaseMs
	}
	if opts.HeartbeatEvery <= 0 {
		opts.HeartbeatEvery = time.Duration(opts.LeaseMs) * time.Millisecond / 3
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Runner{
		tr:     tr,
		exec:   exec,
		opts:   opts,
		logger: opts.Logger.With(logpkg.Component("runner"), logpkg.Str("runner_id", opts.RunnerID)),
		sleep:  sleepCtx,
	}, nil
}

// Run registers the runner and loops until ctx is cancelled. It returns nil
// on cancellation and an error only if registration is rejected.
func (r *Runner) Run(ctx context.Context) error {
	if _, err := r.tr.RegisterRunner(ctx, apiv1.RegisterRunnerRequest{
		RunnerID: r.opts.RunnerID,
		Labels:   r.opts.Labels,
		Metadata: r.opts.Metadata,
	}); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("register runner: %w", err)
	}
	r.logger.Info("runner started", logpkg.Int("max", r.opts.Max), logpkg.Int64("lease_ms", r.opts.LeaseMs))
	for {
		wait, err := r.RunOnce(ctx)
		if ctx.Err() != nil {
			r.logger.Info("runner stopped")
			return nil
		}
		if err != nil {
			r.logger.Warn("lease failed", logpkg.Err(err))
		}
		if err := r.sleep(ctx, wait); err != nil {
			r.logger.Info("runner stopped")
			return nil
		}
	}
}

// RunOnce performs one lease call, runs whatever was leased to completion, and
// returns how long to wait before the next call.
func (r *Runner) RunOnce(ctx context.Context) (time.Duration, error) {
	resp, err := r.tr.Lease(ctx, apiv1.LeaseRequest{
		RunnerID: r.opts.RunnerID,
		Max:      r.opts.Max,
		LeaseMs:  r.opts.LeaseMs,
		Labels:   r.opts.Labels,
	})
	if err != nil {
		return r.opts.ErrorBackoff, err
	}
	start := time.Now()
	var wg sync.WaitGroup
	for _, task := range resp.Leased {
		wg.Add(1)
		go func(task apiv1.Task) {
			defer wg.Done()
			r.handle(ctx, task)
		}(task)
	}
	wg.Wait()

	wait := time.Duration(resp.BackoffMs) * time.Millisecond
	if wait > r.opts.MaxBackoff {
		wait = r.opts.MaxBackoff
	}
	// the hint counts from the lease response, not from when work finished
	if len(resp.Leased) > 0 {
		wait -= time.Since(start)
	}
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

// handle executes one task while heartbeating its lease, then reports the
// outcome. Losing the lease cancels execution and skips the report.
func (r *Runner) handle(ctx context.Context, task apiv1.Task) {
	log := r.logger.With(logpkg.Str("task_id", task.ID), logpkg.Str("lease_id", task.LeaseID), logpkg.Str("type", task.Type))
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lost bool
	var mu sync.Mutex
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		ticker := time.NewTicker(r.opts.HeartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-execCtx.Done():
				return
			case <-ticker.C:
				_, err := r.tr.Heartbeat(execCtx, apiv1.HeartbeatRequest{
					RunnerID: r.opts.RunnerID,
					LeaseID:  task.LeaseID,
					ExtendMs: r.opts.LeaseMs,
				})
				if client.IsInvalidLease(err) {
					log.Warn("lease lost, abandoning task")
					mu.Lock()
					lost = true
					mu.Unlock()
					cancel()
					return
				}
				if err != nil && execCtx.Err() == nil {
					log.Warn("heartbeat failed", logpkg.Err(err))
				}
			}
		}
	}()

	result, execErr := r.execute(execCtx, task)
	cancel()
	<-hbDone

	mu.Lock()
	abandoned := lost
	mu.Unlock()
	if abandoned || ctx.Err() != nil {
		return
	}

	rep := apiv1.ResultRequest{RunnerID: r.opts.RunnerID, LeaseID: task.LeaseID, TaskID: task.ID}
	if execErr != nil {
		rep.Status = apiv1.StatusFailed
		rep.Error = execErr.Error()
	} else {
		rep.Status = apiv1.StatusSucceeded
		rep.Result = result
	}
	if err := r.tr.Result(ctx, rep); err != nil {
		log.Warn("report failed", logpkg.Err(err))
		return
	}
	log.Debug("task reported", logpkg.Str("status", rep.Status))
}

// execute runs the executor, turning a panic into a task failure.
func (r *Runner) execute(ctx context.Context, task apiv1.Task) (res json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("executor panic", logpkg.Str("task_id", task.ID), logpkg.Str("stack", string(debug.Stack())))
			res, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.exec.Execute(ctx, task)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
