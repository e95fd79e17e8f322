package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/venture-hub/app"
	"github.com/upb/venture-hub/middleware"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/utils"
)

const defaultRequestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout(deps)))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Frontend.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.ContextTokenHeader},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.HandleHealth)
	r.Get("/health/ready", deps.HealthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler())
	}

	gate := deps.Gate

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", deps.AuthHandler.HandleSignup)
			r.Post("/login", deps.AuthHandler.HandleLogin)
			r.With(deps.Throttle.Middleware).Post("/otp/request", deps.AuthHandler.HandleRequestOTP)
			r.Post("/otp/verify", deps.AuthHandler.HandleVerifyOTP)
			r.Post("/signup/complete", deps.AuthHandler.HandleCompleteSignup)
			r.Post("/logout", deps.AuthHandler.HandleLogout)

			if deps.OAuthHandler != nil {
				r.Get("/google/login", deps.OAuthHandler.HandleLogin)
				r.Get("/google/callback", deps.OAuthHandler.HandleCallback)
			}
		})

		r.With(gate.Authenticate).Get("/me", deps.AuthHandler.HandleMe)

		r.Route("/context", func(r chi.Router) {
			r.Use(gate.Authenticate)
			r.Post("/switch", deps.ContextHandler.HandleSwitch)
			r.Get("/current", deps.ContextHandler.HandleCurrent)
		})

		r.Route("/legacy", func(r chi.Router) {
			r.Post("/login", deps.LegacyHandler.HandleLogin)
			r.With(gate.Authenticate).Get("/institution/session", deps.LegacyHandler.HandleInstitutionSession)
		})

		// Context-scoped areas
		r.With(gate.Mentor).Get("/mentor/overview", deps.ContextHandler.HandleCurrent)
		r.With(gate.Context(models.ContextStartup)).Get("/startup/overview", deps.ContextHandler.HandleCurrent)
		r.With(gate.Context(models.ContextInstitute)).Get("/institute/overview", deps.ContextHandler.HandleCurrent)

		r.Route("/admin/users/{id}", func(r chi.Router) {
			r.With(gate.AdminLevel(models.AdminLevelL2)).Post("/contexts", deps.AdminHandler.HandleUnlockContext)
			r.With(gate.AdminLevel(models.AdminLevelL1)).Get("/activity", deps.AdminHandler.HandleListActivity)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

func requestTimeout(deps *app.Dependencies) time.Duration {
	if t := deps.Config.Server.RequestTimeout; t > 0 {
		return t
	}
	return defaultRequestTimeout
}
