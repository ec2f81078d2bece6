package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	apiv1 "github.com/rzbill/runq/api/v1"
	"github.com/rzbill/runq/internal/services/tasks"
)

// RunnersController serves runner registration and listing under /runners.
type RunnersController struct {
	svc *tasks.Service
}

// NewRunnersController creates a new runners controller.
func NewRunnersController(svc *tasks.Service) *RunnersController {
	return &RunnersController{svc: svc}
}

// RegisterRoutes registers the /runners routes on r, each handler wrapped by wrap.
func (c *RunnersController) RegisterRoutes(r *mux.Router, wrap Wrapper) {
	r.Handle("/runners", wrap.handler(c.handleList)).Methods(http.MethodGet)
	r.Handle("/runners/register", wrap.handler(c.handleRegister)).Methods(http.MethodPost)
}

// handleRegister records a runner with its labels and metadata.
func (c *RunnersController) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req apiv1.RegisterRunnerRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := c.svc.RegisterRunner(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

// handleList returns all known runners, alive or not.
func (c *RunnersController) handleList(w http.ResponseWriter, r *http.Request) {
	resp, err := c.svc.ListRunners(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}
