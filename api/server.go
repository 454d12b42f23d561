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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/groups/{groupID}/expenses       Direct expense entry
  /api/expenses/{id}                   Single-expense operations
  /api/groups/{groupID}/balances       Net balance ledger
  /api/groups/{groupID}/settlements    Settlement plan and mark-paid
  /api/groups/{groupID}/receipt-sessions  Session creation and listing
  /api/receipt-sessions/{id}           Claiming, finalize, reopen, SSE

SECURITY NOTE:
  No authentication middleware currently. Identity arrives as a
  participant reference in the request body and is trusted. An auth
  layer in front of this service is expected in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - sse.go: Event stream endpoint
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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Group-scoped routes
		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", h.ListExpenses)
				r.Post("/", h.CreateExpense)
			})

			r.Get("/balances", h.GetBalances)

			r.Route("/settlements", func(r chi.Router) {
				r.Get("/", h.ListSettlements)
				r.Post("/", h.CreateSettlement)
				r.Get("/plan", h.GetSettlementPlan)
			})

			r.Route("/receipt-sessions", func(r chi.Router) {
				r.Get("/", h.ListSessions)
				r.Post("/", h.CreateSession)
			})
		})

		// Expense routes (id-scoped)
		r.Route("/expenses", func(r chi.Router) {
			r.Get("/{id}", h.GetExpense)
			r.Put("/{id}", h.UpdateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		// Settlement routes (id-scoped)
		r.Delete("/settlements/{id}", h.DeleteSettlement)

		// Receipt session routes
		r.Route("/receipt-sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/items/{itemID}/claim", h.ClaimItem)
			r.Post("/items/{itemID}/unclaim", h.UnclaimItem)
			r.Post("/finalize", h.FinalizeSession)
			r.Post("/reopen", h.ReopenSession)
			r.Get("/events", h.StreamEvents)
		})
	})

	return r
}
