package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/riskgate/internal/models"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

type contextKey string

// SessionContextKey is the key for storing session claims in context
const SessionContextKey contextKey = "session"

// SessionChecker reports whether a session is still active
type SessionChecker interface {
	IsSessionActive(ctx context.Context, sessionID string) (bool, error)
}

// AuthMiddleware validates bearer session tokens and injects their claims into
// the request context. When checker is non-nil, tokens of revoked or expired
// sessions are rejected even though their signature is still valid.
func AuthMiddleware(tm *TokenManager, checker SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Missing or malformed bearer token")
				return
			}

			claims, err := tm.ValidateToken(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			if checker != nil {
				active, err := checker.IsSessionActive(r.Context(), claims.SessionID)
				if err != nil {
					pkghttp.WriteServiceUnavailable(w, "Unable to verify session")
					return
				}
				if !active {
					pkghttp.WriteUnauthorized(w, "Session is no longer active")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithSessionClaims(r.Context(), claims)))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetSessionFromContext extracts session claims from request context
func GetSessionFromContext(r *http.Request) *models.TokenClaims {
	claims, _ := r.Context().Value(SessionContextKey).(*models.TokenClaims)
	return claims
}

// WithSessionClaims returns a copy of ctx carrying claims
func WithSessionClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, SessionContextKey, claims)
}
