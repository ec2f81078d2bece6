// Package apiv1 holds the JSON request and response bodies shared by the
// runq HTTP and gRPC surfaces and the client transports.
package apiv1

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Task states.
const (
	StatePending    = "pending"
	StateLeased     = "leased"
	StateSucceeded  = "succeeded"
	StateDeadLetter = "dead-letter"
)

// Result statuses reported by runners.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Error codes carried in ErrorResponse.Error.
const (
	CodeUnauthorized = "unauthorized"
	CodeBadRequest   = "bad-request"
	CodeInvalidLease = "invalid-lease"
	CodeTaskNotFound = "task-not-found"
	CodeInternal     = "internal"
)

// Selector restricts which runners may lease a task.
type Selector struct {
	RunnerID string   `json:"runnerId,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	// Expr is a CEL boolean expression over runner_id and labels.
	Expr string `json:"expr,omitempty"`
}

// TaskInput is one task in a submit request.
type TaskInput struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   int             `json:"priority,omitempty"`
	MaxRetries *int            `json:"maxRetries,omitempty"`
	Selector   *Selector       `json:"selector,omitempty"`
	ShardKey   string          `json:"shardKey,omitempty"`
}

// Task is the wire form of a queued task.
type Task struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Priority      int             `json:"priority"`
	MaxRetries    int             `json:"maxRetries"`
	Retries       int             `json:"retries"`
	State         string          `json:"state"`
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

// SubmitResponse is returned by /tasks/submit.
type SubmitResponse struct {
	OK       bool     `json:"ok"`
	Accepted int      `json:"accepted"`
	IDs      []string `json:"ids"`
}

// LeaseRequest is the body of /tasks/lease.
type LeaseRequest struct {
	RunnerID string   `json:"runnerId"`
	Max      int      `json:"max,omitempty"`
	LeaseMs  int64    `json:"leaseMs,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// LeaseResponse is returned by /tasks/lease.
type LeaseResponse struct {
	OK        bool   `json:"ok"`
	Leased    []Task `json:"leased"`
	BackoffMs int64  `json:"backoffMs"`
}

// HeartbeatRequest is the body of /tasks/heartbeat.
type HeartbeatRequest struct {
	RunnerID string `json:"runnerId"`
	LeaseID  string `json:"leaseId"`
	ExtendMs int64  `json:"extendMs,omitempty"`
}

// HeartbeatResponse is returned by /tasks/heartbeat.
type HeartbeatResponse struct {
	OK       bool  `json:"ok"`
	Deadline int64 `json:"deadline"`
}

// ResultRequest is the body of /tasks/result.
type ResultRequest struct {
	RunnerID string          `json:"runnerId"`
	LeaseID  string          `json:"leaseId"`
	TaskID   string          `json:"taskId"`
	Status   string          `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// OKResponse is the minimal success body.
type OKResponse struct {
	OK bool `json:"ok"`
}

// StatsResponse is returned by /tasks/stats.
type StatsResponse struct {
	OK     bool           `json:"ok"`
	Stats  map[string]int `json:"stats"`
	Total  int            `json:"total"`
	Leases int            `json:"leases"`
}

// Runner is a registered runner record.
type Runner struct {
	ID           string            `json:"runnerId"`
	Labels       []string          `json:"labels,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RegisteredAt int64             `json:"registeredAt"`
	LastSeenAt   int64             `json:"lastSeenAt"`
	Alive        bool              `json:"alive"`
}

// RegisterRunnerRequest is the body of /runners/register.
type RegisterRunnerRequest struct {
	RunnerID string            `json:"runnerId"`
	Labels   []string          `json:"labels,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RegisterRunnerResponse is returned by /runners/register.
type RegisterRunnerResponse struct {
	OK     bool   `json:"ok"`
	Runner Runner `json:"runner"`
}

// ListRunnersResponse is returned by GET /runners.
type ListRunnersResponse struct {
	OK      bool     `json:"ok"`
	Runners []Runner `json:"runners"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Event kinds recorded in the task event journal.
const (
	EventSubmitted    = "submitted"
	EventLeased       = "leased"
	EventHeartbeat    = "heartbeat"
	EventSucceeded    = "succeeded"
	EventFailed       = "failed"
	EventDeadLettered = "dead-lettered"
	EventExpired      = "expired"
)

// TaskEvent is one entry of the task event journal.
type TaskEvent struct {
	Seq      uint64 `json:"seq"`
	At       int64  `json:"at"`
	Kind     string `json:"kind"`
	TaskID   string `json:"taskId"`
	Type     string `json:"type,omitempty"`
	LeaseID  string `json:"leaseId,omitempty"`
	RunnerID string `json:"runnerId,omitempty"`
	Retries  int    `json:"retries"`
	Deadline int64  `json:"deadline,omitempty"`
	Error    string `json:"error,omitempty"`
}

// EventsRequest pages through the journal. Over HTTP the fields travel as
// query parameters of GET /tasks/events.
type EventsRequest struct {
	// Cursor is exclusive: events after it, or before it when Reverse is set.
	Cursor  uint64 `json:"cursor,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Reverse bool   `json:"reverse,omitempty"`
	// WaitMs long-polls a forward read that finds nothing.
	WaitMs int64 `json:"waitMs,omitempty"`
}

// Query encodes r as GET /tasks/events parameters, omitting zero values.
func (r EventsRequest) Query() url.Values {
	q := url.Values{}
	if r.Cursor > 0 {
		q.Set("cursor", strconv.FormatUint(r.Cursor, 10))
	}
	if r.Limit > 0 {
		q.Set("limit", strconv.Itoa(r.Limit))
	}
	if r.Reverse {
		q.Set("reverse", "true")
	}
	if r.WaitMs > 0 {
		q.Set("waitMs", strconv.FormatInt(r.WaitMs, 10))
	}
	if r.TaskID != "" {
		q.Set("taskId", r.TaskID)
	}
	return q
}

// EventsResponse is returned by /tasks/events. Next is the cursor for the
// following page.
type EventsResponse struct {
	OK     bool        `json:"ok"`
	Events []TaskEvent `json:"events"`
	Next   uint64      `json:"next"`
}
