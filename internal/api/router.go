package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)
		r.Get("/system/status", s.handleSystemStatus)

		// Recipe endpoints
		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", s.handleListRecipes)
			r.Post("/", s.handleCreateRecipe)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRecipe)
				r.Post("/stages", s.handleAddStage)
				r.Put("/stages/{index}", s.handleEditStage)
				r.Delete("/stages/{index}", s.handleRemoveStage)
				r.Get("/validate", s.handleValidateRecipe)
				r.Post("/save", s.handleSaveDraft)
				r.Post("/publish", s.handlePublishRecipe)
				r.Post("/clone", s.handleCloneRecipe)
				r.Post("/deprecate", s.handleDeprecateRecipe)
				r.Get("/versions", s.handleListVersions)
				r.Get("/versions/{number}", s.handleGetVersion)
			})
		})

		// Override endpoints
		r.Route("/overrides", func(r chi.Router) {
			r.Get("/", s.handleListOverrides)
			r.Post("/", s.handleRequestOverride)
			r.Get("/history/{kind}/{scopeID}", s.handleOverrideHistory)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetOverride)
				r.Delete("/", s.handleCancelOverride)
				r.Post("/escalate", s.handleEscalateOverride)
			})
		})

		// Schedule endpoints
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Post("/", s.handleCreateSchedule)

			r.Route("/{kind}/{scopeID}", func(r chi.Router) {
				r.Get("/", s.handleGetSchedule)
				r.Get("/position", s.handleStagePosition)
				r.Post("/blackouts", s.handleAddBlackout)
				r.Delete("/blackouts/{index}", s.handleRemoveBlackout)
			})
		})

		// Activation endpoints
		r.Route("/activations", func(r chi.Router) {
			r.Get("/", s.handleListActivations)
			r.Post("/", s.handleScheduleActivation)
			r.Delete("/{id}", s.handleCancelActivation)
		})

		// Batch group endpoints
		r.Route("/batch-groups", func(r chi.Router) {
			r.Get("/", s.handleListBatchGroups)
			r.Post("/", s.handleCreateBatchGroup)
			r.Get("/{id}", s.handleGetBatchGroup)
		})

		// Effective setpoint queries
		r.Route("/effective/{kind}/{scopeID}", func(r chi.Router) {
			r.Get("/", s.handleEffectiveScope)
			r.Get("/{parameter}", s.handleEffectiveParameter)
		})

		// Signal injection (safety, e-stop, demand-response)
		r.Route("/signals", func(r chi.Router) {
			r.Get("/safety", s.handleListSafetySignals)
			r.Post("/safety", s.handleRaiseSafety)
			r.Delete("/safety/{kind}/{scopeID}", s.handleClearSafety)

			r.Get("/estop", s.handleListEStopSignals)
			r.Post("/estop", s.handleRaiseEStop)
			r.Delete("/estop/{kind}/{scopeID}", s.handleClearEStop)

			r.Get("/dr", s.handleListDirectives)
			r.Post("/dr", s.handleAcceptDirective)
			r.Delete("/dr/{id}", s.handleWithdrawDirective)
		})

		// Audit ledger
		r.Route("/audit", func(r chi.Router) {
			r.Get("/", s.handleQueryAudit)
			r.Get("/verify", s.handleVerifyAudit)
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
