package taskqueue

import "time"

// MetricsHook observes queue activity. Implementations must be safe for
// concurrent use and must not block.
type MetricsHook interface {
	ObserveSubmitted(n int)
	ObserveLeased(n int)
	ObserveReclaimed(n int)
	// ObserveOutcome is called once per accepted result with the state the task moved to.
	ObserveOutcome(to State)
	ObserveSnapshot(elapsed time.Duration, err error)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveSubmitted(int)                 {}
func (NoopMetrics) ObserveLeased(int)                    {}
func (NoopMetrics) ObserveReclaimed(int)                 {}
func (NoopMetrics) ObserveOutcome(State)                 {}
func (NoopMetrics) ObserveSnapshot(time.Duration, error) {}
