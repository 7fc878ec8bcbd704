package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for login endpoints (5 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 5,
	}
}

// AuthRateLimit returns a login rate limit of perMinute, or the default when perMinute is not positive
func AuthRateLimit(perMinute int) RateLimitConfig {
	if perMinute <= 0 {
		return DefaultAuthRateLimit()
	}
	return RateLimitConfig{RequestsPerMinute: perMinute}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// The IP is resolved with the same trusted-proxy rules the login flow uses.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// RateLimitBySession limits authenticated requests per session, falling back
// to the client IP when no session is in context
func RateLimitBySession(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetSessionFromContext(r); claims != nil && claims.SessionID != "" {
				return "session:" + claims.SessionID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}
