package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/services"
	pkghttp "github.com/BradenHooton/riskgate/pkg/http"
)

// AccountServiceInterface defines account creation
type AccountServiceInterface interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Account, error)
}

// SessionRevoker ends sessions
type SessionRevoker interface {
	Revoke(ctx context.Context, sessionID string) error
}

// AccountHandler handles account and session endpoints
type AccountHandler struct {
	accounts AccountServiceInterface
	sessions SessionRevoker
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accounts AccountServiceInterface, sessions SessionRevoker, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		sessions: sessions,
		logger:   logger,
	}
}

// Register handles POST /accounts
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.accounts.Register(r.Context(), services.RegisterRequest{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		HomeRegion: req.HomeRegion,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// Logout handles POST /auth/logout and revokes the caller's session
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.sessions.Revoke(r.Context(), claims.SessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
