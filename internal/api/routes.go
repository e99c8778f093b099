package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/waitlist-engine/internal/config"
	"github.com/ignite/waitlist-engine/internal/pkg/httputil"
)

// SetupRoutes configures all routes.
func SetupRoutes(cfg config.ServerConfig, deps Deps, devMode bool) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	// CORS - the landing page posts signups cross-origin; admin uses cookies
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/health/live", deps.Health.HandleLiveness)
		r.Get("/health/ready", deps.Health.HandleReadiness)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	h := NewHandlers(deps.Waitlist)

	// Public funnel
	r.Post("/email-waitlist", h.Signup)
	r.Get("/confirm-email", h.ConfirmEmail)
	r.Get("/waitlist/stats", h.Stats)
	r.Get("/user-status", h.UserStatus)

	// Auth routes (no auth required)
	if deps.Auth != nil {
		r.Get("/auth/login", deps.Auth.HandleLogin)
		r.Get("/auth/callback", deps.Auth.HandleCallback)
		r.Get("/auth/logout", deps.Auth.HandleLogout)
		r.Get("/auth/user", deps.Auth.HandleUserInfo)
	}

	switch {
	case deps.Auth != nil && !devMode:
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Auth.RequireAuth)
			h.mountAdmin(r)
		})
	case devMode:
		log.Printf("[API] WARNING: dev mode, admin routes are not authenticated")
		r.Route("/admin", h.mountAdmin)
	default:
		log.Printf("[API] Admin routes disabled (auth not configured)")
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "NOT_FOUND", "Not found.")
	})

	return r
}

func (h *Handlers) mountAdmin(r chi.Router) {
	r.Get("/waitlist", h.AdminList)
	r.Post("/waitlist/reindex", h.AdminReindex)
}
