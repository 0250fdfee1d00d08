/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging through the handler's logrus logger
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the till frontend
  5. Rate limit: Per-client requests per minute on /api (httprate)

ROUTE GROUPS:
  /api/stores/*       Store directory and per-store day close
  /api/orders/*       Order intake and daily aggregate
  /api/day-close/*    History and summary
  /api/operational    Operational gate
  /api/boot-check/*   Boot-time check
  /api/reset          Database reset (dev only)

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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
	"github.com/go-chi/httprate"
	"github.com/warp/pos-engine/config"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
// A nil cfg uses the default origins and no rate limit.
func NewRouter(h *Handler, cfg *config.Config) *chi.Mux {
	origins := defaultOrigins
	rateLimit := 0
	if cfg != nil {
		if len(cfg.AllowedOrigins) > 0 {
			origins = cfg.AllowedOrigins
		}
		rateLimit = cfg.RateLimit
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		if rateLimit > 0 {
			r.Use(httprate.LimitByIP(rateLimit, time.Minute))
		}

		// Store routes
		r.Route("/stores", func(r chi.Router) {
			r.Get("/", h.ListStores)
			r.Post("/", h.CreateStore)
			r.Get("/{id}", h.GetStore)
			r.Get("/{id}/day-close/{date}", h.GetDayClose)
			r.Post("/{id}/day-close", h.CloseDay)
		})

		// Order routes
		r.Route("/orders", func(r chi.Router) {
			r.With(h.RequireOperational).Post("/", h.CreateOrder)
			r.Get("/status", h.OrdersStatus)
		})

		// Day close history
		r.Route("/day-close", func(r chi.Router) {
			r.Get("/", h.ListDayCloses)
			r.Get("/summary", h.DayCloseSummary)
		})

		r.Get("/operational", h.Operational)

		r.Route("/boot-check", func(r chi.Router) {
			r.Post("/", h.BootCheck)
			r.Get("/last", h.LastBootReport)
		})

		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
