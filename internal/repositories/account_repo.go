package repositories

import (
	"context"

	"github.com/BradenHooton/riskgate/internal/database"
	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepositoryImpl {
	return &AccountRepositoryImpl{pool: db.Pool}
}

// rowScanner interface for scanning account rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account

	err := scanner.Scan(
		&account.ID, &account.Email, &account.PasswordHash, &account.Name,
		&account.HomeRegion, &account.Status,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &account, nil
}

// Create inserts account and fills in the generated fields
func (r *AccountRepositoryImpl) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (email, password_hash, name, home_region, status)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'active'))
		RETURNING id, email, password_hash, name, home_region, status, created_at, updated_at
	`

	created, err := scanAccountRow(r.pool.QueryRow(ctx, query,
		account.Email, account.PasswordHash, account.Name, account.HomeRegion, account.Status,
	))
	if err != nil {
		return err
	}

	*account = *created
	return nil
}

func (r *AccountRepositoryImpl) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `
		SELECT id, email, password_hash, name, home_region, status, created_at, updated_at
		FROM accounts WHERE email = $1
	`

	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}
