package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the operational router.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Get("/api/v1/status", h.Status)
	r.Get("/api/v1/audit", h.ListAudit)
	r.Get("/api/v1/costs", h.CostReport)
	r.Post("/api/v1/cache/purge", h.PurgeCache)

	return r
}
