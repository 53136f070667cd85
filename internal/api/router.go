package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kmahoney/transit-orchestrator/internal/api/handler"
	"github.com/kmahoney/transit-orchestrator/internal/api/middleware"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
	"github.com/kmahoney/transit-orchestrator/internal/workflow"
)

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(store storage.Storage, engine *workflow.Engine, apiKey string, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(log))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(apiKey))

		eventHandler := handler.NewEventHandler(engine)
		r.Post("/events", eventHandler.Submit)

		requestHandler := handler.NewRequestHandler(store, engine)
		r.Get("/requests", requestHandler.List)
		r.Get("/requests/{id}", requestHandler.Get)
		r.Get("/requests/{id}/audit", requestHandler.Audit)
		r.Post("/requests/{id}/accept", requestHandler.Accept)
		r.Post("/requests/{id}/reject", requestHandler.Reject)
	})

	return r
}
