package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/lib/pq"
)

// TwoFactorRepositoryImpl implements TwoFactorRepository on Postgres
type TwoFactorRepositoryImpl struct {
	db *database.DB
}

// NewTwoFactorRepository creates a new two-factor repository
func NewTwoFactorRepository(db *database.DB) TwoFactorRepository {
	return &TwoFactorRepositoryImpl{db: db}
}

// settingsColumns flattens the method variant into its table columns
type settingsColumns struct {
	method          string
	secretEncrypted []byte
	secretNonce     []byte
	phoneNumber     *string
	backupEmail     *string
}

func columnsFromSettings(settings models.MethodSettings) (settingsColumns, error) {
	switch s := settings.(type) {
	case models.TOTPSettings:
		return settingsColumns{method: string(models.MethodTOTP), secretEncrypted: s.EncryptedSecret, secretNonce: s.Nonce}, nil
	case models.SMSSettings:
		return settingsColumns{method: string(models.MethodSMS), phoneNumber: &s.PhoneNumber}, nil
	case models.EmailSettings:
		return settingsColumns{method: string(models.MethodEmail), backupEmail: &s.BackupEmail}, nil
	}
	return settingsColumns{}, fmt.Errorf("%w: unsupported settings %T", models.ErrUnknownTwoFactorMethod, settings)
}

func (c settingsColumns) toSettings() (models.MethodSettings, error) {
	switch models.TwoFactorMethod(c.method) {
	case models.MethodTOTP:
		return models.TOTPSettings{EncryptedSecret: c.secretEncrypted, Nonce: c.secretNonce}, nil
	case models.MethodSMS:
		if c.phoneNumber == nil {
			return nil, fmt.Errorf("%w: sms config without phone number", models.ErrStorageFailure)
		}
		return models.SMSSettings{PhoneNumber: *c.phoneNumber}, nil
	case models.MethodEmail:
		if c.backupEmail == nil {
			return nil, fmt.Errorf("%w: email config without backup email", models.ErrStorageFailure)
		}
		return models.EmailSettings{BackupEmail: *c.backupEmail}, nil
	}
	return nil, fmt.Errorf("%w: stored method %q", models.ErrUnknownTwoFactorMethod, c.method)
}

// GetConfig retrieves the enabled configuration for email
func (r *TwoFactorRepositoryImpl) GetConfig(ctx context.Context, email string) (*models.TwoFactorConfig, error) {
	query := `
		SELECT email, enabled, method, secret_encrypted, secret_nonce, phone_number, backup_email,
		       recovery_codes, used_recovery_codes, enrolled_at
		FROM two_factor_configs
		WHERE email = $1
	`

	cfg := &models.TwoFactorConfig{}
	var cols settingsColumns

	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&cfg.Email,
		&cfg.Enabled,
		&cols.method,
		&cols.secretEncrypted,
		&cols.secretNonce,
		&cols.phoneNumber,
		&cols.backupEmail,
		&cfg.RecoveryCodes,
		&cfg.UsedRecoveryCodes,
		&cfg.EnrolledAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	settings, err := cols.toSettings()
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	return cfg, nil
}

// SaveConfig inserts or replaces the configuration for cfg.Email
func (r *TwoFactorRepositoryImpl) SaveConfig(ctx context.Context, cfg *models.TwoFactorConfig) error {
	cols, err := columnsFromSettings(cfg.Settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO two_factor_configs
			(email, enabled, method, secret_encrypted, secret_nonce, phone_number, backup_email,
			 recovery_codes, used_recovery_codes, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (email) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			method = EXCLUDED.method,
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			phone_number = EXCLUDED.phone_number,
			backup_email = EXCLUDED.backup_email,
			recovery_codes = EXCLUDED.recovery_codes,
			used_recovery_codes = EXCLUDED.used_recovery_codes,
			enrolled_at = EXCLUDED.enrolled_at
	`

	_, err = r.db.Pool.Exec(ctx, query,
		cfg.Email,
		cfg.Enabled,
		cols.method,
		cols.secretEncrypted,
		cols.secretNonce,
		cols.phoneNumber,
		cols.backupEmail,
		pq.Array(nonNil(cfg.RecoveryCodes)),
		pq.Array(nonNil(cfg.UsedRecoveryCodes)),
		cfg.EnrolledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save two-factor config: %w", database.MapPostgresError(err))
	}

	return nil
}

// DeleteConfig removes the configuration for email. Missing rows are not an error.
func (r *TwoFactorRepositoryImpl) DeleteConfig(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM two_factor_configs WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to delete two-factor config: %w", database.MapPostgresError(err))
	}
	return nil
}

// ConsumeRecoveryCode marks digest used in a single conditional update.
// Concurrent callers for the same digest are serialized on the row lock and
// only the first sees its predicate hold.
func (r *TwoFactorRepositoryImpl) ConsumeRecoveryCode(ctx context.Context, email, digest string) (bool, error) {
	query := `
		UPDATE two_factor_configs
		SET used_recovery_codes = array_append(used_recovery_codes, $2::text)
		WHERE email = $1
		  AND enabled
		  AND $2::text = ANY(recovery_codes)
		  AND NOT ($2::text = ANY(used_recovery_codes))
	`

	tag, err := r.db.Pool.Exec(ctx, query, email, digest)
	if err != nil {
		return false, fmt.Errorf("failed to consume recovery code: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected() == 1, nil
}

// ReplaceRecoveryCodes installs a fresh recovery set and clears the used set
func (r *TwoFactorRepositoryImpl) ReplaceRecoveryCodes(ctx context.Context, email string, digests []string) error {
	query := `
		UPDATE two_factor_configs
		SET recovery_codes = $2, used_recovery_codes = '{}'
		WHERE email = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, email, pq.Array(nonNil(digests)))
	if err != nil {
		return fmt.Errorf("failed to replace recovery codes: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// GetPendingEnrollment retrieves the enrollment in progress for email
func (r *TwoFactorRepositoryImpl) GetPendingEnrollment(ctx context.Context, email string) (*models.PendingEnrollment, error) {
	query := `
		SELECT email, method, secret_encrypted, secret_nonce, phone_number, backup_email, recovery_codes, started_at
		FROM two_factor_enrollments
		WHERE email = $1
	`

	pending := &models.PendingEnrollment{}
	var cols settingsColumns

	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&pending.Email,
		&cols.method,
		&cols.secretEncrypted,
		&cols.secretNonce,
		&cols.phoneNumber,
		&cols.backupEmail,
		&pending.RecoveryCodes,
		&pending.StartedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	settings, err := cols.toSettings()
	if err != nil {
		return nil, err
	}
	pending.Settings = settings

	return pending, nil
}

// SavePendingEnrollment replaces any earlier enrollment for the same email
func (r *TwoFactorRepositoryImpl) SavePendingEnrollment(ctx context.Context, pending *models.PendingEnrollment) error {
	cols, err := columnsFromSettings(pending.Settings)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO two_factor_enrollments
			(email, method, secret_encrypted, secret_nonce, phone_number, backup_email, recovery_codes, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO UPDATE SET
			method = EXCLUDED.method,
			secret_encrypted = EXCLUDED.secret_encrypted,
			secret_nonce = EXCLUDED.secret_nonce,
			phone_number = EXCLUDED.phone_number,
			backup_email = EXCLUDED.backup_email,
			recovery_codes = EXCLUDED.recovery_codes,
			started_at = EXCLUDED.started_at
	`

	_, err = r.db.Pool.Exec(ctx, query,
		pending.Email,
		cols.method,
		cols.secretEncrypted,
		cols.secretNonce,
		cols.phoneNumber,
		cols.backupEmail,
		pq.Array(nonNil(pending.RecoveryCodes)),
		pending.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending enrollment: %w", database.MapPostgresError(err))
	}

	return nil
}

// DeletePendingEnrollment removes the enrollment in progress for email
func (r *TwoFactorRepositoryImpl) DeletePendingEnrollment(ctx context.Context, email string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM two_factor_enrollments WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to delete pending enrollment: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteStaleEnrollments removes enrollments started before the cutoff
func (r *TwoFactorRepositoryImpl) DeleteStaleEnrollments(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM two_factor_enrollments WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale enrollments: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL
func nonNil(codes []string) []string {
	if codes == nil {
		return []string{}
	}
	return codes
}
