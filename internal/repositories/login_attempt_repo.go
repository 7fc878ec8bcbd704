package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Append records a login attempt and trims the account's ledger to the newest limit entries.
// Both statements run in one transaction so readers never see more than limit rows.
func (r *LoginAttemptRepository) Append(ctx context.Context, attempt *models.LoginAttempt, limit int) error {
	insert := `
		INSERT INTO login_attempts (id, email, attempt_time, ip_address, user_agent, success, location, device_fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	trim := `
		DELETE FROM login_attempts
		WHERE email = $1 AND seq NOT IN (
			SELECT seq FROM login_attempts
			WHERE email = $1
			ORDER BY seq DESC
			LIMIT $2
		)
	`

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		// Serialize writers per account so concurrent appends cannot both skip the trim
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, attempt.Email); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, insert,
			attempt.ID,
			attempt.Email,
			attempt.Timestamp,
			attempt.IPAddress,
			attempt.UserAgent,
			attempt.Success,
			attempt.Location,
			attempt.DeviceFingerprint,
		); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, trim, attempt.Email, limit)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to append login attempt: %w", database.MapPostgresError(err))
	}

	return nil
}

// History returns the ledger for email, oldest first
func (r *LoginAttemptRepository) History(ctx context.Context, email string) ([]models.LoginAttempt, error) {
	query := `
		SELECT id, email, attempt_time, ip_address, user_agent, success, location, device_fingerprint
		FROM login_attempts
		WHERE email = $1
		ORDER BY seq ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	attempts := make([]models.LoginAttempt, 0)
	for rows.Next() {
		var a models.LoginAttempt
		if err := rows.Scan(
			&a.ID,
			&a.Email,
			&a.Timestamp,
			&a.IPAddress,
			&a.UserAgent,
			&a.Success,
			&a.Location,
			&a.DeviceFingerprint,
		); err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", database.MapPostgresError(err))
		}
		attempts = append(attempts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}

	return attempts, nil
}
