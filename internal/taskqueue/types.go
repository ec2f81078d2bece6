package taskqueue

import "encoding/json"

// State is the lifecycle state of a task.
type State string

const (
	StatePending    State = "pending"
	StateLeased     State = "leased"
	StateSucceeded  State = "succeeded"
	StateDeadLetter State = "dead-letter"
)

// AllStates lists every state in display order.
var AllStates = []State{StatePending, StateLeased, StateSucceeded, StateDeadLetter}

// Status is the outcome a runner reports for a leased task.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Selector restricts which runners may lease a task. All set fields must match.
type Selector struct {
	RunnerID string   `json:"runnerId,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	// Expr is a CEL boolean expression over runner_id (string) and labels (list of string).
	Expr string `json:"expr,omitempty"`
}

// Task is a unit of work and its lifecycle state. This is also the persisted form.
type Task struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Priority      int             `json:"priority"`
	MaxRetries    int             `json:"maxRetries"`
	Retries       int             `json:"retries"`
	State         State           `json:"state"`
	Selector      *Selector       `json:"selector,omitempty"`
	ShardKey      string          `json:"shardKey,omitempty"`
	LeaseID       string          `json:"leaseId,omitempty"`
	LeaseDeadline int64           `json:"leaseDeadline,omitempty"`
	RunnerID      string          `json:"runnerId,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
	FinishedAt    int64           `json:"finishedAt,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// Terminal reports whether the task can no longer change.
func (t *Task) Terminal() bool {
	return t.State == StateSucceeded || t.State == StateDeadLetter
}

func (t *Task) clearLease() {
	t.LeaseID = ""
	t.LeaseDeadline = 0
	t.RunnerID = ""
}

// Lease is a time-bounded claim of one runner on one task.
type Lease struct {
	TaskID   string `json:"taskId"`
	Deadline int64  `json:"deadline"`
	RunnerID string `json:"runnerId"`
}

// NewTask is one submission. A nil or negative MaxRetries takes the queue default.
type NewTask struct {
	Type       string
	Payload    json.RawMessage
	Priority   int
	MaxRetries *int
	Selector   *Selector
	ShardKey   string
}

// LeaseRequest asks for up to Max pending tasks. Zero values take defaults.
type LeaseRequest struct {
	RunnerID string
	Max      int
	LeaseMs  int64
	Labels   []string
}

// LeaseResult carries the leased tasks and a polling hint for the runner.
type LeaseResult struct {
	Leased    []Task
	BackoffMs int64
}

// Report is a runner's outcome for a leased task.
type Report struct {
	RunnerID string
	LeaseID  string
	TaskID   string
	Status   Status
	Result   json.RawMessage
	Error    string
}

// Stats summarizes the queue. ByState always contains every state.
type Stats struct {
	ByState map[State]int
	Total   int
	Leases  int
}
