package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

const authAccountColumns = `id, user_id, provider, provider_account_id, password_hash, created_at`

// AuthAccountRepository implements the repositories.AuthAccountRepository interface
type AuthAccountRepository struct {
	db     *DB
	tx     *sql.Tx
	logger *zap.Logger
}

// NewAuthAccountRepository creates a new auth account repository
func NewAuthAccountRepository(db *DB, logger *zap.Logger) repositories.AuthAccountRepository {
	return &AuthAccountRepository{
		db:     db,
		logger: logger,
	}
}

// Create binds a new login method to a user
func (r *AuthAccountRepository) Create(ctx context.Context, account *models.AuthAccount) error {
	query := `
		INSERT INTO auth_accounts (id, user_id, provider, provider_account_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := executorFor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.Provider,
		account.ProviderAccountID,
		account.PasswordHash,
		account.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s account: %w", account.Provider, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create auth account: %w", err)
	}

	r.logger.Debug("auth account created",
		zap.String("user_id", account.UserID.String()),
		zap.String("provider", string(account.Provider)))
	return nil
}

// GetByProviderAccount finds the account a provider identity is bound to
func (r *AuthAccountRepository) GetByProviderAccount(ctx context.Context, provider models.Provider, providerAccountID string) (*models.AuthAccount, error) {
	query := `SELECT ` + authAccountColumns + ` FROM auth_accounts WHERE provider = $1 AND provider_account_id = $2`

	executor := executorFor(ctx, r.db, r.tx)
	return r.get(executor.QueryRowContext(ctx, query, provider, providerAccountID))
}

// GetByUserAndProvider finds the user's account for a provider
func (r *AuthAccountRepository) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.AuthAccount, error) {
	query := `SELECT ` + authAccountColumns + ` FROM auth_accounts WHERE user_id = $1 AND provider = $2`

	executor := executorFor(ctx, r.db, r.tx)
	return r.get(executor.QueryRowContext(ctx, query, userID, provider))
}

func (r *AuthAccountRepository) get(row *sql.Row) (*models.AuthAccount, error) {
	account := &models.AuthAccount{}
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderAccountID,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("auth account: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get auth account: %w", err)
	}
	return account, nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *AuthAccountRepository) WithTx(tx repositories.Transaction) repositories.AuthAccountRepository {
	return &AuthAccountRepository{
		db:     r.db,
		tx:     boundTx(tx),
		logger: r.logger,
	}
}
