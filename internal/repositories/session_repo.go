package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepositoryImpl keeps a row per issued session token.
// The signed token itself is never stored.
type SessionRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepositoryImpl {
	return &SessionRepositoryImpl{pool: db.Pool}
}

func (r *SessionRepositoryImpl) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, account_id, email, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, session.ID, session.AccountID, session.Email, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func (r *SessionRepositoryImpl) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, account_id, email, issued_at, expires_at
		FROM sessions WHERE id = $1
	`

	var s models.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.AccountID, &s.Email, &s.IssuedAt, &s.ExpiresAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

// Delete revokes a session. Missing rows are not an error.
func (r *SessionRepositoryImpl) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// DeleteExpired removes sessions past their expiry
func (r *SessionRepositoryImpl) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
