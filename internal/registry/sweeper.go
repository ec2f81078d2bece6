package registry

import (
	"context"
	"sync"
	"time"

	logpkg "github.com/rzbill/runq/pkg/log"
)

// Sweeper periodically removes expired runners.
type Sweeper struct {
	reg      *Registry
	interval time.Duration
	batch    int
	logger   logpkg.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper that prunes up to batch runners every interval.
func NewSweeper(reg *Registry, interval time.Duration, batch int, logger logpkg.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 256
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Sweeper{
		reg:      reg,
		interval: interval,
		batch:    batch,
		logger:   logger.With(logpkg.Component("registry-sweeper")),
	}
}

// Start launches the sweep loop. It stops when ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Debug("runner sweeper started", logpkg.Duration("interval", s.interval))
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("runner sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.reg.CleanupExpired(s.ctx, s.batch)
			if err != nil {
				s.logger.Warn("runner cleanup failed", logpkg.Err(err))
				continue
			}
			if n > 0 {
				s.logger.Info("pruned expired runners", logpkg.Int("count", n))
			}
		}
	}
}
