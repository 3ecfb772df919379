/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the calendar frontend

ROUTE GROUPS:
  /api/properties/*     Reservations, balances, penalties per property
  /api/reservations/*   Cancellation and possession lifecycle
  /api/scenarios/*      Demo scenarios (dev only)

SEE ALSO:
  - handlers.go: Handler implementations
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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Property-scoped routes
		r.Route("/properties/{propertyID}", func(r chi.Router) {
			r.Get("/reservations", h.ListReservations)
			r.Post("/reservations", h.SubmitReservation)

			r.Get("/members/{userID}/balance", h.GetBalance)
			r.Get("/members/{userID}/transactions", h.GetTransactions)

			r.Get("/penalties", h.ListPenalties)
			r.Post("/penalties", h.IssuePenalty)
			r.Delete("/penalties/{id}", h.ClearPenalty)
		})

		// Reservation lifecycle routes
		r.Route("/reservations/{id}", func(r chi.Router) {
			r.Delete("/", h.CancelReservation)
			r.Post("/checkin", h.SubmitCheckin)
			r.Post("/checkout", h.SubmitCheckout)
			r.Get("/checklists", h.ListChecklists)
		})

		// Scenario routes (dev only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
