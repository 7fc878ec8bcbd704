package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeSession marks tokens minted for an authenticated session
const TokenTypeSession = "session"

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret string
	issuer string
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret, issuer string) *TokenManager {
	return &TokenManager{
		secret: secret,
		issuer: issuer,
	}
}

// GenerateSessionToken signs a token bound to a session ID
func (tm *TokenManager) GenerateSessionToken(sessionID, accountID, email string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &models.TokenClaims{
		Type:      TokenTypeSession,
		SessionID: sessionID,
		AccountID: accountID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    tm.issuer,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	}, jwt.WithIssuer(tm.issuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != TokenTypeSession {
		return nil, fmt.Errorf("invalid token: unexpected type %q", claims.Type)
	}

	return claims, nil
}
