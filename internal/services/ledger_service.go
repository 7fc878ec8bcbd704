package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/riskgate/internal/auth"
	"github.com/BradenHooton/riskgate/internal/location"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
	"github.com/google/uuid"
)

// LedgerService records login attempts into the bounded per-account ledger
type LedgerService struct {
	repo     repositories.AttemptRepository
	resolver location.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(repo repositories.AttemptRepository, resolver location.Resolver, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		repo:     repo,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Record resolves the client location, appends the attempt and trims the
// ledger to models.MaxAttemptHistory. The stored attempt is returned.
func (s *LedgerService) Record(ctx context.Context, email string, success bool, client models.ClientContext) (*models.LoginAttempt, error) {
	loc, err := s.resolver.Resolve(ctx, client.IPAddress)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("location lookup failed, recording unknown location",
			slog.String("ip_address", client.IPAddress),
			slog.Any("error", err))
		loc = models.UnknownLocation
	}
	if loc == "" {
		loc = models.UnknownLocation
	}

	attempt := &models.LoginAttempt{
		ID:                uuid.New().String(),
		Email:             email,
		Timestamp:         s.now().UTC().Truncate(time.Microsecond),
		IPAddress:         client.IPAddress,
		UserAgent:         client.UserAgent,
		Success:           success,
		Location:          loc,
		DeviceFingerprint: auth.DeviceFingerprint(client.UserAgent, client.AcceptLanguage),
	}

	if err := s.repo.Append(ctx, attempt, models.MaxAttemptHistory); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, storageFailure(err)
	}

	return attempt, nil
}

// History returns the attempts for email, oldest first
func (s *LedgerService) History(ctx context.Context, email string) ([]models.LoginAttempt, error) {
	history, err := s.repo.History(ctx, email)
	if err != nil {
		s.logger.Error("failed to load login history",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return nil, storageFailure(err)
	}
	return history, nil
}
