package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/rzbill/flodq/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	queues  *QueuesController
}

// NewControllerRegistry creates a new controller registry over rt.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		queues:  NewQueuesController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with r.
//
// This sets up the health and namespace endpoints and the deque endpoints
// under /v1/queues.
func (reg *ControllerRegistry) RegisterAllRoutes(r chi.Router) {
	reg.general.RegisterRoutes(r)
	reg.queues.RegisterRoutes(r)
}
