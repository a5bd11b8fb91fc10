/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Timeout:    Request-boundary time box for the take path and friends
  5. CORS:       Cross-origin requests for the frontend

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Request-path operations are time-boxed at the boundary; the engine
	// itself imposes no deadlines.
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Medication routes
		r.Route("/medications", func(r chi.Router) {
			r.Get("/", h.ListMedications)
			r.Post("/", h.CreateMedication)
			r.Get("/{id}", h.GetMedication)
			r.Put("/{id}", h.UpdateMedication)
			r.Delete("/{id}", h.DeleteMedication)
			r.Get("/{id}/stats", h.MedicationStats)
		})

		// Dose routes
		r.Route("/doses", func(r chi.Router) {
			r.Get("/today", h.TodayDoses)
			r.Get("/upcoming", h.UpcomingDoses)
			r.Get("/stats", h.Stats)
			r.Get("/calendar", h.Calendar)
			r.Post("/{id}/take", h.TakeDose)
		})

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/events", h.ReconcileEvents)
			r.Post("/run", h.RunReconciliation)
		})
	})

	return r
}
