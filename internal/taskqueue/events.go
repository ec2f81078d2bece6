package taskqueue

// EventKind names a lifecycle transition recorded by the queue.
type EventKind string

const (
	EventSubmitted    EventKind = "submitted"
	EventLeased       EventKind = "leased"
	EventHeartbeat    EventKind = "heartbeat"
	EventSucceeded    EventKind = "succeeded"
	EventFailed       EventKind = "failed"
	EventDeadLettered EventKind = "dead-lettered"
	EventExpired      EventKind = "expired"
)

// Event describes one change to one task. Events are delivered through
// Options.OnEvents in the order the changes were applied.
type Event struct {
	At       int64
	Kind     EventKind
	TaskID   string
	Type     string
	LeaseID  string
	RunnerID string
	Retries  int
	// Deadline is the lease deadline for leased and heartbeat events.
	Deadline int64
	Error    string
}

func (q *Queue) emit(e Event) {
	if q.opts.OnEvents != nil {
		q.events = append(q.events, e)
	}
}

// flushEvents hands buffered events to OnEvents. Callers must hold q.mu.
func (q *Queue) flushEvents() {
	if len(q.events) == 0 {
		return
	}
	evs := q.events
	q.events = nil
	q.opts.OnEvents(evs)
}
