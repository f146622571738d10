package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/flodq/internal/runtime"
)

// GeneralController handles health and namespace endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with r:
// - Health checks (/v1/healthz)
// - Namespace management (/v1/namespaces)
func (c *GeneralController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/healthz", c.handleHealth)
	r.Get("/v1/namespaces", c.handleListNamespaces)
	r.Post("/v1/namespaces", c.handleCreateNamespace)
}

// handleHealth returns 200 with {"status": "ok"} if healthy, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (c *GeneralController) handleListNamespaces(w http.ResponseWriter, _ *http.Request) {
	list, err := c.rt.Namespaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list namespaces")
		return
	}
	writeJSON(w, map[string]any{"namespaces": list})
}

type nsCreateReq struct {
	Namespace string `json:"namespace"`
}

func (c *GeneralController) handleCreateNamespace(w http.ResponseWriter, r *http.Request) {
	var req nsCreateReq
	if !decodeBody(w, r, &req) {
		return
	}
	meta, err := c.rt.EnsureNamespace(req.Namespace)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, meta)
}
