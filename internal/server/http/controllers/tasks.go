package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/services/tasks"
)

// TasksController serves the task queue endpoints under /tasks.
type TasksController struct {
	svc *tasks.Service
}

// NewTasksController creates a new tasks controller.
func NewTasksController(svc *tasks.Service) *TasksController {
	return &TasksController{svc: svc}
}

// RegisterRoutes registers the /tasks routes on r, each handler wrapped by wrap.
func (c *TasksController) RegisterRoutes(r *mux.Router, wrap Wrapper) {
	r.Handle("/tasks/submit", wrap.handler(c.handleSubmit)).Methods(http.MethodPost)
	r.Handle("/tasks/lease", wrap.handler(c.handleLease)).Methods(http.MethodPost)
	r.Handle("/tasks/heartbeat", wrap.handler(c.handleHeartbeat)).Methods(http.MethodPost)
	r.Handle("/tasks/result", wrap.handler(c.handleResult)).Methods(http.MethodPost)
	r.Handle("/tasks/stats", wrap.handler(c.handleStats)).Methods(http.MethodGet)
	r.Handle("/tasks/events", wrap.handler(c.handleEvents)).Methods(http.MethodGet)
}

// handleSubmit enqueues one task or an array of tasks.
//
// Returns the number accepted and the assigned ids in submission order.
func (c *TasksController) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	in, err := tasks.DecodeSubmit(body)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := c.svc.Submit(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

// handleLease leases up to max pending tasks to the calling runner.
func (c *TasksController) handleLease(w http.ResponseWriter, r *http.Request) {
	var req apiv1.LeaseRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := c.svc.Lease(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

// handleHeartbeat extends an active lease and returns the new deadline.
func (c *TasksController) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req apiv1.HeartbeatRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := c.svc.Heartbeat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (c *TasksController) handleResult(w http.ResponseWriter, r *http.Request) {
	var req apiv1.ResultRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := c.svc.Result(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (c *TasksController) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := c.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

// handleEvents pages through the task event journal.
//
// Query: cursor, limit, taskId, reverse, waitMs (long-poll when nothing is new).
func (c *TasksController) handleEvents(w http.ResponseWriter, r *http.Request) {
	req, err := tasks.ParseEventsQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := c.svc.Events(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}
