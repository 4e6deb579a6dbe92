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
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Signal endpoints
		r.Route("/signals", func(r chi.Router) {
			r.Get("/", s.handleListSignals)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetSignal)
				r.Get("/reading", s.handleGetReading)
				r.Put("/value", s.handleWriteValue)
			})
		})

		// Motor position snapshot endpoints
		r.Route("/positions", func(r chi.Router) {
			r.Get("/", s.handleListPositions)
			r.Post("/", s.handleSavePosition)

			r.Route("/{uid}", func(r chi.Router) {
				r.Get("/", s.handleGetPosition)
				r.Delete("/", s.handleDeletePosition)
				r.Post("/recall", s.handleRecallPosition)
			})
		})

		// WebSocket reading stream
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
