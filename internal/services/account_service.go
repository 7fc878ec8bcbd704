package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/BradenHooton/riskgate/internal/repositories"
	pkgauth "github.com/BradenHooton/riskgate/pkg/auth"
	pkglogger "github.com/BradenHooton/riskgate/pkg/logger"
)

// RegisterRequest carries the fields needed to create an account
type RegisterRequest struct {
	Email      string
	Password   string
	Name       string
	HomeRegion string
}

// AccountService is the primary credential store backed by bcrypt hashes
type AccountService struct {
	repo   repositories.AccountRepository
	hasher *pkgauth.Hasher
	logger *slog.Logger
}

// NewAccountService creates a new AccountService
func NewAccountService(repo repositories.AccountRepository, hasher *pkgauth.Hasher, logger *slog.Logger) *AccountService {
	return &AccountService{
		repo:   repo,
		hasher: hasher,
		logger: logger,
	}
}

// NormalizeEmail lowercases and trims an email for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Verify checks email and password. Unknown emails, wrong passwords and
// disabled accounts all return models.ErrInvalidCredentials and take the same time.
func (s *AccountService) Verify(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		if !errors.Is(err, pkgauth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
		}
		return nil, models.ErrInvalidCredentials
	}

	if account.Status != "" && account.Status != "active" {
		s.logger.Info("login blocked due to account status",
			slog.String("account_id", account.ID),
			slog.String("status", account.Status))
		return nil, models.ErrInvalidCredentials
	}

	return account, nil
}

// Register creates an account after validating the password policy
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", models.ErrBadRequest)
	}

	if err := pkgauth.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		HomeRegion:   strings.TrimSpace(req.HomeRegion),
		Status:       "active",
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, storageFailure(err)
	}

	s.logger.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(email)))

	return account, nil
}
