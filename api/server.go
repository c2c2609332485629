/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to
  handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard frontend

ROUTE GROUPS:
  /api/uploads/*      Source file ingestion (admin)
  /api/records        Harmonized record queries
  /api/commissions/*  Commission results and annual reports
  /api/config/*       Tiers, objectives, mappings (writes are admin)

SECURITY NOTE:
  Role headers are trusted as set by the fronting gateway; this
  service performs scoping, not authentication.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Role scoping
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerRole, headerRep},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Upload routes
		r.Route("/uploads", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/{line}", h.Upload)
		})

		// Record routes
		r.Get("/records", h.ListRecords)

		// Commission routes
		r.Route("/commissions/{rep}", func(r chi.Router) {
			r.Get("/annual/{year}", h.GetAnnualReport)
			r.Get("/{line}/{period}", h.GetCommission)
		})

		// Configuration routes
		r.Route("/config", func(r chi.Router) {
			r.Get("/tiers/{rep}/{line}", h.GetTiers)
			r.Get("/objectives/{rep}/{line}/{period}", h.GetObjective)
			r.Get("/services", h.ListServices)
			r.Get("/reps", h.ListRepMappings)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Put("/tiers/{rep}/{line}", h.PutTiers)
				r.Put("/objectives/{rep}/{line}/{period}", h.PutObjective)
				r.Put("/services", h.PutService)
				r.Post("/reps", h.PostRepMapping)
			})
		})
	})

	return r
}
