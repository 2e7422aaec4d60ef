package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/velist/velist/internal/auth"
	"github.com/velist/velist/internal/handlers"
	"github.com/velist/velist/internal/middleware"
	pkghttp "github.com/velist/velist/pkg/http"
)

// Deps collects everything the router needs
type Deps struct {
	Auth      *handlers.AuthHandler
	Settings  *handlers.TwoFactorSettingsHandler
	Dashboard *handlers.DashboardHandler
	Health    *handlers.HealthHandler
	Sessions  auth.SessionVerifier
	IPs       *pkghttp.IPResolver
	RateLimit middleware.RateLimitConfig
	Env       string
	AppURL    string
	Logger    *slog.Logger
}

// NewRouter builds the application router with the global middleware stack.
func NewRouter(deps Deps) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecureLogger(deps.Logger, deps.IPs))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: deps.Env}))
	router.Use(middleware.SameOrigin(deps.AppURL, deps.Logger))

	RegisterRoutes(router, deps)
	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Deps) {
	authHandler := deps.Auth
	limit := middleware.RateLimitByIP(deps.RateLimit, deps.IPs)

	router.Get("/health", deps.Health.Health)

	// Public routes - no session required
	router.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Get("/login", authHandler.ShowLogin)
		r.With(limit).Post("/login", authHandler.Login)
		r.Get("/register", authHandler.ShowRegister)
		r.With(limit).Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)

		// Second factor, gated by the pending cookie rather than a session
		r.Get("/2fa", authHandler.ShowTwoFactorChallenge)
		r.With(limit).Post("/2fa", authHandler.VerifyTwoFactor)
		r.With(limit).Post("/2fa/backup", authHandler.VerifyBackupCode)

		if authHandler.OAuthEnabled() {
			r.Get("/oauth", authHandler.OAuthRedirect)
			r.With(limit).Get("/oauth/callback", authHandler.OAuthCallback)
		}
	})

	// Protected routes - session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(deps.Sessions, auth.GateConfig{
			LoginPath: authHandler.LoginPath,
			Logger:    deps.Logger,
		}))

		r.Get("/dashboard", deps.Dashboard.Dashboard)

		r.Route("/settings/2fa", func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Get("/", deps.Settings.Show)
			r.Post("/setup", deps.Settings.Setup)
			r.With(limit).Post("/enable", deps.Settings.Enable)
			r.Post("/disable", deps.Settings.Disable)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("admin"))
			r.Get("/admin", deps.Dashboard.Admin)
		})
	})
}
