package eventlog

import (
	"context"
	"sync"
	"time"

	logpkg "github.com/rzbill/runq/pkg/log"
)

// RetentionPolicy bounds the journal. Zero MaxAge or MaxBytes disables that bound.
type RetentionPolicy struct {
	MaxAge   time.Duration
	MaxBytes int64
	Interval time.Duration
}

// Retainer periodically trims the journal to its retention policy.
type Retainer struct {
	log    *Log
	policy RetentionPolicy
	now    func() time.Time
	logger logpkg.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetainer creates a retainer. A nil now uses time.Now.
func NewRetainer(l *Log, policy RetentionPolicy, now func() time.Time, logger logpkg.Logger) *Retainer {
	if policy.Interval <= 0 {
		policy.Interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Retainer{
		log:    l,
		policy: policy,
		now:    now,
		logger: logger.With(logpkg.Component("eventlog-retainer")),
	}
}

// Start launches the trim loop. It stops when ctx is done or Stop is called.
func (r *Retainer) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run()
}

// Stop halts the loop and waits for it to exit.
func (r *Retainer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

// RunOnce applies the policy once and returns how many entries were deleted.
func (r *Retainer) RunOnce(ctx context.Context) (int, error) {
	total := 0
	if r.policy.MaxAge > 0 {
		cutoff := r.now().Add(-r.policy.MaxAge).UnixMilli()
		n, err := r.log.TrimOlderThan(ctx, cutoff, 0)
		total += n
		if err != nil {
			return total, err
		}
	}
	if r.policy.MaxBytes > 0 {
		n, err := r.log.TrimToMaxBytes(ctx, r.policy.MaxBytes, 0)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *Retainer) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.policy.Interval)
	defer ticker.Stop()

	r.logger.Debug("event retainer started", logpkg.Duration("interval", r.policy.Interval))
	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("event retainer stopped")
			return
		case <-ticker.C:
			n, err := r.RunOnce(r.ctx)
			if err != nil {
				r.logger.Warn("event trim failed", logpkg.Err(err))
				continue
			}
			if n > 0 {
				r.logger.Info("trimmed task events", logpkg.Int("count", n))
			}
		}
	}
}
