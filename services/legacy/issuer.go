package legacy

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/activity"
	"github.com/upb/venture-hub/tokens"
	"go.uber.org/zap"
)

// DefaultTTL is the lifetime of a per-role token
const DefaultTTL = 4 * time.Hour

// Authenticator checks email and password credentials
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// IssuedToken is a signed per-role token with its storage key
type IssuedToken struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Role      models.LegacyRole `json:"role"`
	Key       string            `json:"key"`
}

// Issuer mints per-role tokens for clients that have not moved to the
// unified session yet.
type Issuer struct {
	auth        Authenticator
	memberships repositories.MembershipRepository
	codec       *tokens.Codec
	recorder    activity.Recorder
	ttl         time.Duration
	logger      *zap.Logger
}

// NewIssuer creates an issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(auth Authenticator, memberships repositories.MembershipRepository, codec *tokens.Codec, recorder activity.Recorder, ttl time.Duration, logger *zap.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		auth:        auth,
		memberships: memberships,
		codec:       codec,
		recorder:    recorder,
		ttl:         ttl,
		logger:      logger,
	}
}

// Login authenticates the user and mints a token for role if they are
// eligible for it. Founder and institution roles are bound to entityID.
func (i *Issuer) Login(ctx context.Context, email, password, role string, entityID *uuid.UUID) (*IssuedToken, error) {
	legacyRole, err := models.ParseLegacyRole(role)
	if err != nil {
		return nil, services.ErrInvalidLegacyRole
	}

	user, err := i.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := i.checkEligible(ctx, user, legacyRole, entityID); err != nil {
		i.logger.Info("legacy login refused",
			zap.String("user_id", user.ID.String()),
			zap.String("role", string(legacyRole)),
			zap.Error(err))
		return nil, err
	}

	claims := tokens.LegacyClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
		Role:             legacyRole,
		Email:            user.Email,
	}
	if legacyRole == models.LegacyRoleFounder || legacyRole == models.LegacyRoleInstitution {
		claims.EntityID = entityID
	}

	token, expiresAt, err := i.codec.SignLegacy(claims, i.ttl)
	if err != nil {
		return nil, services.WrapInternal("failed to sign token", err)
	}

	i.recorder.Record(models.NewActivityLog(user.ID, models.ActivityLegacyLogin).
		WithEntity(claims.EntityID).
		WithDetails(map[string]string{"role": string(legacyRole)}))

	return &IssuedToken{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      legacyRole,
		Key:       legacyRole.TokenKey(),
	}, nil
}

func (i *Issuer) checkEligible(ctx context.Context, user *models.User, role models.LegacyRole, entityID *uuid.UUID) error {
	switch role {
	case models.LegacyRoleMentor:
		if !user.HasContext(models.ContextMentor) {
			return services.ErrContextAccessDenied
		}
		return nil
	case models.LegacyRoleInvestor:
		return nil
	}

	if entityID == nil || *entityID == uuid.Nil {
		return services.ErrEntityIDRequired
	}

	var err error
	if role == models.LegacyRoleFounder {
		_, err = i.memberships.GetStartupMembership(ctx, user.ID, *entityID)
	} else {
		_, err = i.memberships.GetInstitutionMembership(ctx, user.ID, *entityID)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return services.ErrEntityAccessDenied
	}
	if err != nil {
		return services.WrapInternal("failed to check membership", err)
	}
	return nil
}
