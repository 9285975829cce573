/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests from the reporting front end

ROUTE GROUPS:
  /api/runs/*           Period runs
  /api/portfolios/*     Rule books and period state
  /api/parameters/*     RECRATE
  /metrics              Prometheus scrape endpoint (when enabled)
  /healthz              Liveness

AUTHENTICATION:
  Reads are public. Anything that writes (runs, rule book overrides,
  RECRATE) needs an HS256 bearer token, see auth.go.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/nplprov/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	JWTSecret   string
	Metrics     http.Handler // nil disables /metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	requireToken := RequireToken(opts.JWTSecret)

	r.Route("/api", func(r chi.Router) {
		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{id}", h.GetRun)
			r.With(requireToken).Post("/", h.CreateRun)
		})

		// Portfolio routes
		r.Route("/portfolios", func(r chi.Router) {
			r.Get("/", h.ListPortfolios)
			r.Get("/{name}/rulebook", h.GetRuleBook)
			r.With(requireToken).Put("/{name}/rulebook", h.PutRuleBook)

			r.Route("/{name}/periods/{period}", func(r chi.Router) {
				r.Get("/rates", h.GetRates)
				r.Get("/provisions", h.GetProvisions)
				r.Get("/report", h.GetReport)
				r.Get("/interface", h.GetInterface)
			})
		})

		// Parameter routes
		r.Route("/parameters", func(r chi.Router) {
			r.Get("/recrate", h.GetRecRate)
			r.With(requireToken).Put("/recrate", h.PutRecRate)
		})
	})

	return r
}
