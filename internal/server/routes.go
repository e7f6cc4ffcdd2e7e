package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Command evaluation. Blocks while an approval is pending.
	r.Post("/evaluate", s.evaluateCommand)

	// Approval routes
	r.Route("/approvals", func(r chi.Router) {
		r.Get("/", s.listApprovals)
		r.Post("/{approvalID}", s.resolveApproval)
	})

	// Per-project settings
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", s.getSettings)
		r.Patch("/", s.updateSettings)
	})

	// Audit trail
	r.Get("/audit", s.queryAudit)

	// Event streaming (SSE)
	r.Get("/event", s.allEvents)

	// Health check
	r.Get("/health", s.health)
}
