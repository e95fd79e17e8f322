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

// MembershipRepository implements the repositories.MembershipRepository interface
type MembershipRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB, logger *zap.Logger) repositories.MembershipRepository {
	return &MembershipRepository{
		db:     db,
		logger: logger,
	}
}

// GetStartupMembership returns the founder relation joined with the startup
func (r *MembershipRepository) GetStartupMembership(ctx context.Context, userID, startupID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT sf.user_id, sf.entity_id, sf.role, NULL::uuid, s.name, s.logo_url
		FROM startup_founders sf
		JOIN startups s ON s.id = sf.entity_id
		WHERE sf.user_id = $1 AND sf.entity_id = $2
	`
	return r.get(ctx, "startup", query, userID, startupID)
}

// GetInstitutionMembership returns the member relation joined with the institution
func (r *MembershipRepository) GetInstitutionMembership(ctx context.Context, userID, institutionID uuid.UUID) (*models.Membership, error) {
	query := `
		SELECT im.user_id, im.entity_id, im.role, im.application_id, i.name, i.logo_url
		FROM institution_members im
		JOIN institutions i ON i.id = im.entity_id
		WHERE im.user_id = $1 AND im.entity_id = $2
	`
	return r.get(ctx, "institution", query, userID, institutionID)
}

func (r *MembershipRepository) get(ctx context.Context, kind, query string, userID, entityID uuid.UUID) (*models.Membership, error) {
	executor := executorFor(ctx, r.db, nil)

	m := &models.Membership{}
	err := executor.QueryRowContext(ctx, query, userID, entityID).Scan(
		&m.UserID,
		&m.EntityID,
		&m.Role,
		&m.ApplicationID,
		&m.EntityName,
		&m.LogoURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s membership: %w", kind, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s membership: %w", kind, err)
	}

	return m, nil
}
