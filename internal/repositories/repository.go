package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
)

// AttemptRepository persists the per-account attempt ledger
type AttemptRepository interface {
	// Append stores the attempt and evicts the oldest entries beyond limit
	Append(ctx context.Context, attempt *models.LoginAttempt, limit int) error
	// History returns the attempts for email, oldest first
	History(ctx context.Context, email string) ([]models.LoginAttempt, error)
}

// TwoFactorRepository persists enabled configurations and pending enrollments
type TwoFactorRepository interface {
	GetConfig(ctx context.Context, email string) (*models.TwoFactorConfig, error)
	SaveConfig(ctx context.Context, cfg *models.TwoFactorConfig) error
	DeleteConfig(ctx context.Context, email string) error

	// ConsumeRecoveryCode moves digest into the used set. It returns false
	// when the digest is unknown or already used.
	ConsumeRecoveryCode(ctx context.Context, email, digest string) (bool, error)
	ReplaceRecoveryCodes(ctx context.Context, email string, digests []string) error

	GetPendingEnrollment(ctx context.Context, email string) (*models.PendingEnrollment, error)
	SavePendingEnrollment(ctx context.Context, pending *models.PendingEnrollment) error
	DeletePendingEnrollment(ctx context.Context, email string) error
	DeleteStaleEnrollments(ctx context.Context, before time.Time) (int64, error)
}

// OTPRepository stores the latest one-time code per (channel, target)
type OTPRepository interface {
	// Put overwrites any previous code for the same channel and target
	Put(ctx context.Context, code *models.OneTimeCode) error
	Get(ctx context.Context, channel models.Channel, target string) (*models.OneTimeCode, error)
	// MarkUsed flips used to true only if the stored code is still the one
	// issued at issuedAt and unused. It reports whether this call won.
	MarkUsed(ctx context.Context, channel models.Channel, target string, issuedAt time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AccountRepository looks up primary-credential accounts
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
}

// SessionRepository persists issued sessions
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
