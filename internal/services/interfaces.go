package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/riskgate/internal/models"
)

// AccountStore verifies primary credentials.
// Verify returns models.ErrInvalidCredentials for an unknown email or a wrong password.
type AccountStore interface {
	Verify(ctx context.Context, email, password string) (*models.Account, error)
}

// SessionStore issues a session for an authenticated account
type SessionStore interface {
	Save(ctx context.Context, account *models.Account) (*models.Session, error)
}

// NotificationChannel delivers one-time codes out of band.
// Failures are reported as models.ErrDeliveryFailure.
type NotificationChannel interface {
	Send(ctx context.Context, channel models.Channel, target, code string) error
}

// LedgerReader exposes the attempt history the risk engine evaluates
type LedgerReader interface {
	History(ctx context.Context, email string) ([]models.LoginAttempt, error)
}

// storageFailure marks err as a persistence failure unless it already is one
func storageFailure(err error) error {
	if err == nil || errors.Is(err, models.ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
}
