package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims carried by a session token
type TokenClaims struct {
	Type      string `json:"type"`
	SessionID string `json:"sid"`
	AccountID string `json:"account_id"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Session is issued once per successful login
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
