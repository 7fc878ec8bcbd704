package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
)

// OTPRepositoryImpl implements OTPRepository on Postgres
type OTPRepositoryImpl struct {
	db *database.DB
}

// NewOTPRepository creates a new one-time code repository
func NewOTPRepository(db *database.DB) OTPRepository {
	return &OTPRepositoryImpl{db: db}
}

// Put stores code, replacing any earlier code for the same channel and target
func (r *OTPRepositoryImpl) Put(ctx context.Context, code *models.OneTimeCode) error {
	query := `
		INSERT INTO one_time_codes (channel, target, code, issued_at, used)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel, target) DO UPDATE SET
			code = EXCLUDED.code,
			issued_at = EXCLUDED.issued_at,
			used = EXCLUDED.used
	`

	_, err := r.db.Pool.Exec(ctx, query, string(code.Channel), code.Target, code.Code, code.IssuedAt, code.Used)
	if err != nil {
		return fmt.Errorf("failed to store one-time code: %w", database.MapPostgresError(err))
	}

	return nil
}

// Get retrieves the latest code for channel and target
func (r *OTPRepositoryImpl) Get(ctx context.Context, channel models.Channel, target string) (*models.OneTimeCode, error) {
	query := `
		SELECT channel, target, code, issued_at, used
		FROM one_time_codes
		WHERE channel = $1 AND target = $2
	`

	var code models.OneTimeCode
	var ch string

	err := r.db.Pool.QueryRow(ctx, query, string(channel), target).Scan(
		&ch,
		&code.Target,
		&code.Code,
		&code.IssuedAt,
		&code.Used,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	code.Channel = models.Channel(ch)

	return &code, nil
}

// MarkUsed flips used on the code issued at issuedAt. A reissue or an earlier
// consumer makes the predicate fail and no row is touched.
func (r *OTPRepositoryImpl) MarkUsed(ctx context.Context, channel models.Channel, target string, issuedAt time.Time) (bool, error) {
	query := `
		UPDATE one_time_codes
		SET used = TRUE
		WHERE channel = $1 AND target = $2 AND issued_at = $3 AND NOT used
	`

	tag, err := r.db.Pool.Exec(ctx, query, string(channel), target, issuedAt)
	if err != nil {
		return false, fmt.Errorf("failed to mark one-time code used: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected() == 1, nil
}

// DeleteExpired removes codes whose validity window ended before now
func (r *OTPRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM one_time_codes
		WHERE (channel = 'sms' AND issued_at < $1)
		   OR (channel = 'email' AND issued_at < $2)
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		now.Add(-models.SMSCodeValidity),
		now.Add(-models.EmailCodeValidity),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired one-time codes: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected(), nil
}
