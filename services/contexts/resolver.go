// Package contexts switches a verified identity into one of its unlocked
// dashboard contexts.
package contexts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/venture-hub/internal/observability"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/activity"
	"github.com/upb/venture-hub/tokens"
	"go.uber.org/zap"
)

// DefaultTTL is the lifetime of a context token
const DefaultTTL = 4 * time.Hour

// SwitchResult is returned by a successful switch
type SwitchResult struct {
	Success     bool                  `json:"success"`
	Token       string                `json:"token"`
	ExpiresAt   time.Time             `json:"expires_at"`
	ContextInfo *models.EntitySummary `json:"context_info"`
}

// Resolver validates context switches and mints context tokens. It holds no
// per-user state, so concurrent switches are independent.
type Resolver struct {
	users       repositories.UserRepository
	memberships repositories.MembershipRepository
	codec       *tokens.Codec
	recorder    activity.Recorder
	metrics     observability.Metrics
	ttl         time.Duration
	logger      *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithTTL sets the context token lifetime
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithMetrics reports switch outcomes
func WithMetrics(m observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver
func NewResolver(users repositories.UserRepository, memberships repositories.MembershipRepository, codec *tokens.Codec, recorder activity.Recorder, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		users:       users,
		memberships: memberships,
		codec:       codec,
		recorder:    recorder,
		metrics:     observability.NopMetrics{},
		ttl:         DefaultTTL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Switch moves identity into requested. Checks run cheapest first: request
// shape and the token snapshot before the user row, the user row before the
// membership relation.
func (r *Resolver) Switch(ctx context.Context, identity *tokens.IdentityClaims, requested, entityID string) (*SwitchResult, error) {
	result, err := r.doSwitch(ctx, identity, requested, entityID)
	outcome := "success"
	if err != nil {
		outcome = string(services.GetErrorType(err))
	}
	r.metrics.RecordContextSwitch(strings.ToLower(strings.TrimSpace(requested)), outcome)
	return result, err
}

func (r *Resolver) doSwitch(ctx context.Context, identity *tokens.IdentityClaims, requested, entityID string) (*SwitchResult, error) {
	if identity == nil || identity.Scope != tokens.ScopeSession {
		return nil, services.ErrUnauthenticated
	}

	target, err := models.ParseContext(requested)
	if err != nil {
		return nil, services.ErrInvalidContext.WithDetail("context", requested)
	}

	if !identity.HasContext(target) {
		return nil, services.ErrContextAccessDenied
	}

	var entity *uuid.UUID
	if target.RequiresEntity() {
		id, err := uuid.Parse(strings.TrimSpace(entityID))
		if err != nil || id == uuid.Nil {
			return nil, services.ErrEntityIDRequired.WithDetail("context", string(target))
		}
		entity = &id
	}

	userID := identity.UserID()
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUnauthenticated
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	if !user.HasContext(target) {
		r.logger.Info("context revoked since token issue",
			zap.String("user_id", userID.String()),
			zap.String("context", string(target)))
		return nil, services.ErrContextAccessDenied
	}

	info, err := r.contextInfo(ctx, user, target, entity)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := r.codec.SignContext(tokens.ContextClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
		Context:          target,
		EntityID:         entity,
	}, r.ttl)
	if err != nil {
		return nil, services.WrapInternal("failed to sign context token", err)
	}

	r.recorder.Record(models.NewActivityLog(userID, models.ActivityContextSwitch).
		WithTransition(user.ActiveContext, target).
		WithEntity(entity).
		WithRequest(middleware.GetReqID(ctx)))

	if err := r.users.SetActiveContext(ctx, userID, target); err != nil {
		r.logger.Warn("failed to record active context",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	return &SwitchResult{
		Success:     true,
		Token:       token,
		ExpiresAt:   expiresAt,
		ContextInfo: info,
	}, nil
}

func (r *Resolver) contextInfo(ctx context.Context, user *models.User, target models.Context, entity *uuid.UUID) (*models.EntitySummary, error) {
	var (
		membership *models.Membership
		err        error
	)
	switch target {
	case models.ContextStartup:
		membership, err = r.memberships.GetStartupMembership(ctx, user.ID, *entity)
	case models.ContextInstitute:
		membership, err = r.memberships.GetInstitutionMembership(ctx, user.ID, *entity)
	default:
		summary := models.UserSummary(target, user)
		if target == models.ContextAdmin && user.AdminLevel != nil {
			summary.Role = string(*user.AdminLevel)
		}
		return summary, nil
	}

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrEntityAccessDenied
		}
		return nil, services.WrapInternal("failed to check membership", err)
	}
	return membership.Summary(target), nil
}
