package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Subsystem power and policy state
		r.Route("/subsystem", func(r chi.Router) {
			r.Get("/", s.handleSubsystemStatus)
			r.Post("/enable", s.handleEnable)
			r.Post("/disable", s.handleDisable)
		})

		// Cached peripherals and per-device commands
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleRemoveDevice)
				r.Post("/connect", s.handleConnectDevice)
				r.Post("/disconnect", s.handleDisconnectDevice)
				r.Post("/trust", s.handleTrustDevice)
				r.Post("/untrust", s.handleUntrustDevice)
			})
		})

		// Persistent sighting journal
		r.Route("/journal", func(r chi.Router) {
			r.Get("/", s.handleJournal)
			r.Delete("/{address}", s.handleForget)
		})

		// Behaviour toggles
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleListSettings)
			r.Put("/{key}", s.handleSetSetting)
		})

		// WebSocket event stream
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
