package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	"github.com/google/uuid"
)

// SessionService issues signed session tokens backed by a session row
type SessionService struct {
	repo   repositories.SessionRepository
	tm     *auth.TokenManager
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(repo repositories.SessionRepository, tm *auth.TokenManager, ttl time.Duration, logger *slog.Logger) *SessionService {
	return &SessionService{
		repo:   repo,
		tm:     tm,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Save issues a new session for account
func (s *SessionService) Save(ctx context.Context, account *models.Account) (*models.Session, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	session := &models.Session{
		ID:        uuid.New().String(),
		AccountID: account.ID,
		Email:     account.Email,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}

	token, err := s.tm.GenerateSessionToken(session.ID, session.AccountID, session.Email, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		s.logger.Error("failed to sign session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.Create(ctx, session); err != nil {
		s.logger.Error("failed to persist session",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, storageFailure(err)
	}
	session.Token = token

	s.logger.Info("session issued",
		slog.String("session_id", session.ID),
		slog.String("account_id", account.ID))

	return session, nil
}

// IsSessionActive reports whether sessionID exists and has not expired
func (s *SessionService) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, storageFailure(err)
	}
	return !session.IsExpired(s.now()), nil
}

// Revoke ends a session. Revoking an unknown session is not an error.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return storageFailure(err)
	}
	s.logger.Info("session revoked", slog.String("session_id", sessionID))
	return nil
}
