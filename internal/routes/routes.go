package routes

import (
	"github.com/Ray-dawg/Myralight-sub002/internal/handlers"
	"github.com/Ray-dawg/Myralight-sub002/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	securityHandler *handlers.SecurityHandler,
) {
	// Transport-level IP throttle on the credential endpoints; per-identity
	// throttling happens inside the pipeline.
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/password-reset", authHandler.RequestPasswordReset)
		r.Post("/auth/mfa/verify", mfaHandler.VerifyChallenge)
	})

	// MFA lifecycle
	router.Post("/mfa/factors", mfaHandler.Enroll)
	router.Delete("/mfa/factors/{factorID}", mfaHandler.Disable)

	// Diagnostic and administrative surface
	router.Get("/security/audit/{subject}", securityHandler.Activity)
	router.Get("/security/risk/{identity}", securityHandler.RiskAssessment)
	router.Post("/admin/unlock/{userID}", securityHandler.Unlock)
}
