package routes

import (
	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/handlers"
	"github.com/BradenHooton/riskgate/internal/middleware"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/go-chi/chi/v5"
)

// authenticatedRateLimit bounds per-session traffic on the management routes
const authenticatedRateLimit = 60

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	accountHandler *handlers.AccountHandler,
	loginHandler *handlers.LoginHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionChecker,
	ipConfig *pkghttp.IPConfig,
	loginRateLimit middleware.RateLimitConfig,
) {
	router.Get("/health", healthHandler.Health)

	// Public routes, limited per client IP
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(loginRateLimit, ipConfig))

		r.Post("/accounts", accountHandler.Register)

		r.Post("/auth/login", loginHandler.Login)
		r.Get("/auth/login/{flowID}", loginHandler.GetFlow)
		r.Post("/auth/login/{flowID}/second-factor", loginHandler.SubmitSecondFactor)
		r.Post("/auth/login/{flowID}/second-factor/send", loginHandler.SendSecondFactorCode)
		r.Post("/auth/login/{flowID}/verification", loginHandler.ResolveVerification)
	})

	// Protected routes - live session required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager, sessions))
		r.Use(middleware.RateLimitBySession(middleware.RateLimitConfig{RequestsPerMinute: authenticatedRateLimit}, ipConfig))

		r.Post("/auth/logout", accountHandler.Logout)

		r.Route("/2fa", func(r chi.Router) {
			r.Post("/enroll", twoFactorHandler.Enroll)
			r.Post("/enroll/confirm", twoFactorHandler.ConfirmEnrollment)
			r.Get("/status", twoFactorHandler.Status)
			r.Post("/disable", twoFactorHandler.Disable)
			r.Post("/recovery-codes", twoFactorHandler.RegenerateRecoveryCodes)
		})
	})
}
