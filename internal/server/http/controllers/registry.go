package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rzbill/runq/internal/runtime"
	"github.com/rzbill/runq/internal/services/tasks"
)

// ControllerRegistry manages all HTTP controllers.
//
// All routes live on the root router with full paths so that a method
// mismatch reports 405. Authenticated routes (tasks, runners) have each
// handler wrapped individually.
type ControllerRegistry struct {
	general *GeneralController
	tasks   *TasksController
	runners *RunnersController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *tasks.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		tasks:   NewTasksController(svc),
		runners: NewRunnersController(svc),
	}
}

// RegisterPublicRoutes registers routes that bypass authentication.
func (r *ControllerRegistry) RegisterPublicRoutes(root *mux.Router) {
	r.general.RegisterRoutes(root)
}

// Wrapper decorates a single route handler, typically with auth.
type Wrapper func(http.Handler) http.Handler

func (w Wrapper) handler(fn http.HandlerFunc) http.Handler {
	if w == nil {
		return fn
	}
	return w(fn)
}

// RegisterTaskRoutes registers the /tasks routes on root.
func (r *ControllerRegistry) RegisterTaskRoutes(root *mux.Router, wrap Wrapper) {
	r.tasks.RegisterRoutes(root, wrap)
}

// RegisterRunnerRoutes registers the /runners routes on root.
func (r *ControllerRegistry) RegisterRunnerRoutes(root *mux.Router, wrap Wrapper) {
	r.runners.RegisterRoutes(root, wrap)
}
