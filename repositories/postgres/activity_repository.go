package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

// ActivityRepository implements the repositories.ActivityRepository interface
type ActivityRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *DB, logger *zap.Logger) repositories.ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends an activity entry
func (r *ActivityRepository) Insert(ctx context.Context, log *models.ActivityLog) error {
	query := `
		INSERT INTO activity_logs (id, user_id, action, from_context, to_context, entity_id, details, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := executorFor(ctx, r.db, nil)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.FromContext,
		log.ToContext,
		log.EntityID,
		details,
		nullString(log.RequestID),
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}

	return nil
}

// ListByUser returns the user's activity, newest first
func (r *ActivityRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.ActivityLog, error) {
	query := `
		SELECT id, user_id, action, from_context, to_context, entity_id, details, request_id, created_at
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := executorFor(ctx, r.db, nil)
	rows, err := executor.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ActivityLog
	for rows.Next() {
		log := &models.ActivityLog{}
		var (
			details   []byte
			requestID sql.NullString
		)
		err := rows.Scan(
			&log.ID,
			&log.UserID,
			&log.Action,
			&log.FromContext,
			&log.ToContext,
			&log.EntityID,
			&details,
			&requestID,
			&log.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		log.Details = details
		log.RequestID = requestID.String
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}

	return logs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
