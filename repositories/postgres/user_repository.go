package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

const userColumns = `id, name, email, phone, avatar_url, unlocked_contexts, active_context, admin_level, created_at, updated_at`

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	tx     *sql.Tx
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, phone, avatar_url, unlocked_contexts, active_context, admin_level, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	user.EnsureExplorer()

	executor := executorFor(ctx, r.db, r.tx)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Name,
		models.NormalizeEmail(user.Email),
		user.Phone,
		user.AvatarURL,
		pq.Array(contextStrings(user.UnlockedContexts)),
		user.ActiveContext,
		adminLevelValue(user.AdminLevel),
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	executor := executorFor(ctx, r.db, r.tx)
	user, err := scanUser(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = $1`

	executor := executorFor(ctx, r.db, r.tx)
	user, err := scanUser(executor.QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user for email: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// UpdateProfile sets the display name
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name string) error {
	query := `UPDATE users SET name = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, id, query, id, name, time.Now().UTC())
}

// AddUnlockedContext appends c unless it is already present. The check and
// the append are one statement, so concurrent grants never overwrite each other.
func (r *UserRepository) AddUnlockedContext(ctx context.Context, id uuid.UUID, c models.Context) (*models.User, bool, error) {
	query := `
		UPDATE users
		SET unlocked_contexts = array_append(unlocked_contexts, $2::text), updated_at = $3
		WHERE id = $1 AND NOT ($2::text = ANY(unlocked_contexts))
		RETURNING ` + userColumns

	executor := executorFor(ctx, r.db, r.tx)
	user, err := scanUser(executor.QueryRowContext(ctx, query, id, string(c), time.Now().UTC()))
	switch {
	case err == nil:
		r.logger.Debug("context unlocked", zap.String("id", id.String()), zap.String("context", string(c)))
		return user, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// Either the user is missing or already holds c
		user, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	default:
		return nil, false, fmt.Errorf("failed to unlock context: %w", err)
	}
}

// SetActiveContext records the last context the user switched into
func (r *UserRepository) SetActiveContext(ctx context.Context, id uuid.UUID, c models.Context) error {
	query := `UPDATE users SET active_context = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, id, query, id, c, time.Now().UTC())
}

func (r *UserRepository) execOne(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	executor := executorFor(ctx, r.db, r.tx)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Debug("user updated", zap.String("id", id.String()))
	return nil
}

// WithTx returns a new repository instance bound to the transaction
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return &UserRepository{
		db:     r.db,
		tx:     boundTx(tx),
		logger: r.logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var (
		contexts   pq.StringArray
		active     string
		adminLevel sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.AvatarURL,
		&contexts,
		&active,
		&adminLevel,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	// Unknown names in storage are dropped rather than trusted.
	for _, raw := range contexts {
		if c, err := models.ParseContext(raw); err == nil && !user.HasContext(c) {
			user.UnlockedContexts = append(user.UnlockedContexts, c)
		}
	}
	user.EnsureExplorer()

	user.ActiveContext = models.ContextExplorer
	if c, err := models.ParseContext(active); err == nil {
		user.ActiveContext = c
	}

	if adminLevel.Valid {
		level := models.AdminLevel(adminLevel.String)
		if level.Valid() {
			user.AdminLevel = &level
		}
	}

	return user, nil
}

func contextStrings(contexts []models.Context) []string {
	out := make([]string, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, string(c))
	}
	return out
}

func adminLevelValue(level *models.AdminLevel) interface{} {
	if level == nil {
		return nil
	}
	return string(*level)
}
