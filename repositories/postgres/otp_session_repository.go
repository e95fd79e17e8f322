package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

const otpSessionColumns = `id, email, otp, purpose, entity_id, expires_at, verified, verified_at, created_at`

// OTPSessionRepository implements the repositories.OTPSessionRepository interface
type OTPSessionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewOTPSessionRepository creates a new otp session repository
func NewOTPSessionRepository(db *DB, logger *zap.Logger) repositories.OTPSessionRepository {
	return &OTPSessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a fresh unverified session
func (r *OTPSessionRepository) Create(ctx context.Context, session *models.OTPSession) error {
	query := `
		INSERT INTO otp_sessions (id, email, otp, purpose, entity_id, expires_at, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7)
	`

	executor := executorFor(ctx, r.db, nil)
	_, err := executor.ExecContext(ctx, query,
		session.ID,
		session.Email,
		session.Code,
		session.Purpose,
		session.EntityID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create otp session: %w", err)
	}

	r.logger.Debug("otp session created",
		zap.String("id", session.ID.String()),
		zap.Time("expires_at", session.ExpiresAt))
	return nil
}

// GetByID retrieves a session by ID
func (r *OTPSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.OTPSession, error) {
	query := `SELECT ` + otpSessionColumns + ` FROM otp_sessions WHERE id = $1`

	executor := executorFor(ctx, r.db, nil)
	session, err := scanOTPSession(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("otp session %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get otp session: %w", err)
	}
	return session, nil
}

// Consume flips verified in a single conditional UPDATE so two concurrent
// verifications of the same code cannot both succeed.
func (r *OTPSessionRepository) Consume(ctx context.Context, id uuid.UUID, code string, now time.Time) (*models.OTPSession, bool, error) {
	query := `
		UPDATE otp_sessions
		SET verified = true, verified_at = $3
		WHERE id = $1 AND otp = $2 AND verified = false AND expires_at > $3
		RETURNING ` + otpSessionColumns

	executor := executorFor(ctx, r.db, nil)
	session, err := scanOTPSession(executor.QueryRowContext(ctx, query, id, code, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to consume otp session: %w", err)
	}

	r.logger.Debug("otp session consumed", zap.String("id", id.String()))
	return session, true, nil
}

// CountSince counts sessions created for email inside a sliding window
func (r *OTPSessionRepository) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM otp_sessions
		WHERE email = $1
		  AND created_at >= $2
	`

	var count int
	executor := executorFor(ctx, r.db, nil)
	if err := executor.QueryRowContext(ctx, query, email, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count otp sessions: %w", err)
	}
	return count, nil
}

// DeleteExpired removes sessions that expired before the cutoff
func (r *OTPSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM otp_sessions WHERE expires_at < $1`

	executor := executorFor(ctx, r.db, nil)
	result, err := executor.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func scanOTPSession(row rowScanner) (*models.OTPSession, error) {
	s := &models.OTPSession{}
	err := row.Scan(
		&s.ID,
		&s.Email,
		&s.Code,
		&s.Purpose,
		&s.EntityID,
		&s.ExpiresAt,
		&s.Verified,
		&s.VerifiedAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
