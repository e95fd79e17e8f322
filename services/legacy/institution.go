package legacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/sessioncache"
	"github.com/upb/venture-hub/tokens"
	"go.uber.org/zap"
)

// ErrNotInstitutionToken is returned when a valid legacy token of another role is presented
var ErrNotInstitutionToken = errors.New("legacy token is not an institution token")

// InstitutionSessions verifies legacy institution tokens with the session
// cache in front of the codec and the membership lookup.
type InstitutionSessions struct {
	cache       *sessioncache.Cache
	codec       *tokens.Codec
	memberships repositories.MembershipRepository
	logger      *zap.Logger
}

// NewInstitutionSessions creates a verifier
func NewInstitutionSessions(cache *sessioncache.Cache, codec *tokens.Codec, memberships repositories.MembershipRepository, logger *zap.Logger) *InstitutionSessions {
	return &InstitutionSessions{
		cache:       cache,
		codec:       codec,
		memberships: memberships,
		logger:      logger,
	}
}

// Verify resolves token to an institution session. A cache hit skips the
// membership query. The gate has already checked the signature and expiry
// by then, and an entry never outlives the token it was cached for.
func (s *InstitutionSessions) Verify(ctx context.Context, token string) (*sessioncache.InstitutionSession, error) {
	if cached, ok := s.cache.Get(token); ok {
		return cached, nil
	}

	claims, err := s.codec.VerifyLegacy(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != models.LegacyRoleInstitution {
		return nil, ErrNotInstitutionToken
	}

	membership, err := s.memberships.GetInstitutionMembership(ctx, claims.UserID(), *claims.EntityID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrEntityAccessDenied
		}
		return nil, fmt.Errorf("confirm institution membership: %w", err)
	}

	session := sessioncache.InstitutionSession{
		InstitutionID: membership.EntityID,
		ApplicationID: membership.ApplicationID,
		Email:         claims.Email,
		Role:          membership.Role,
		UserID:        claims.UserID(),
	}
	session.ValidUntil = s.cache.Set(token, session, claims.ExpiresAt.Time)

	s.logger.Debug("institution session cached",
		zap.String("user_id", session.UserID.String()),
		zap.String("institution_id", session.InstitutionID.String()))

	return &session, nil
}

// Evict drops the cached session for token. Logout calls this so a revoked
// token cannot ride the cache TTL.
func (s *InstitutionSessions) Evict(token string) bool {
	return s.cache.Delete(token)
}
