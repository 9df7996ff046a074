package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouteOptions configures cross-cutting concerns of the router.
type RouteOptions struct {
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken       string
	AllowedOrigins []string
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if opts.APIToken != "" {
			r.Use(requireToken(opts.APIToken))
		}

		r.Route("/clean-master", func(r chi.Router) {
			r.Post("/run", h.RunBuild)
			r.Get("/state", h.GetState)
			r.Delete("/state", h.ResetState)
			r.Post("/backfill-dates", h.BackfillDates)
		})

		r.Post("/imports/{platform}", h.RunImport)

		if h.banned != nil {
			r.Route("/banned", func(r chi.Router) {
				r.Get("/", h.ListBanned)
				r.Post("/", h.AddBanned)
				r.Put("/list", h.SetBannedList)
				r.Delete("/{entry}", h.RemoveBanned)
			})
		}
	})

	return r
}

func requireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
