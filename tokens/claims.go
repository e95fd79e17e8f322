package tokens

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
)

// Kind discriminates the claim variants carried in the "kind" claim
type Kind string

const (
	KindIdentity Kind = "identity"
	KindContext  Kind = "context"
	KindLegacy   Kind = "legacy"
)

// Scope narrows what an identity token may be used for
type Scope string

const (
	// ScopeSession is a full unified session
	ScopeSession Scope = "session"
	// ScopeOTPExchange only proves email ownership and can complete signup
	ScopeOTPExchange Scope = "otp_exchange"
)

// IdentityClaims proves "this is user X with these unlocked contexts"
type IdentityClaims struct {
	jwt.RegisteredClaims
	Kind       Kind              `json:"kind"`
	Email      string            `json:"email"`
	Role       string            `json:"role,omitempty"`
	Contexts   []models.Context  `json:"contexts"`
	AdminLevel models.AdminLevel `json:"admin_level,omitempty"`
	Scope      Scope             `json:"scope"`
}

// UserID returns the subject as a UUID
func (c *IdentityClaims) UserID() uuid.UUID {
	return subjectID(c.Subject)
}

// HasContext reports whether the snapshot lists ctx as unlocked
func (c *IdentityClaims) HasContext(ctx models.Context) bool {
	return models.ContainsContext(c.Contexts, ctx)
}

func (c *IdentityClaims) validate() error {
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("%w: sub", ErrMissingClaims)
	}
	if c.Email == "" {
		return fmt.Errorf("%w: email", ErrMissingClaims)
	}
	if !c.HasContext(models.ContextExplorer) {
		return fmt.Errorf("%w: contexts", ErrMissingClaims)
	}
	for _, ctx := range c.Contexts {
		if !ctx.Valid() {
			return fmt.Errorf("%w: contexts", ErrMissingClaims)
		}
	}
	if c.Scope != ScopeSession && c.Scope != ScopeOTPExchange {
		return fmt.Errorf("%w: scope", ErrMissingClaims)
	}
	if c.AdminLevel != "" && !c.AdminLevel.Valid() {
		return fmt.Errorf("%w: admin_level", ErrMissingClaims)
	}
	return nil
}

// ContextClaims proves "user X is acting as context Y, optionally bound to entity Z"
type ContextClaims struct {
	jwt.RegisteredClaims
	Kind     Kind           `json:"kind"`
	Context  models.Context `json:"context"`
	EntityID *uuid.UUID     `json:"entity_id,omitempty"`
}

// UserID returns the subject as a UUID
func (c *ContextClaims) UserID() uuid.UUID {
	return subjectID(c.Subject)
}

func (c *ContextClaims) validate() error {
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("%w: sub", ErrMissingClaims)
	}
	if !c.Context.Valid() {
		return fmt.Errorf("%w: context", ErrMissingClaims)
	}
	if c.Context.RequiresEntity() && (c.EntityID == nil || *c.EntityID == uuid.Nil) {
		return fmt.Errorf("%w: entity_id", ErrMissingClaims)
	}
	return nil
}

// LegacyClaims is the payload of a pre-unification per-role token
type LegacyClaims struct {
	jwt.RegisteredClaims
	Kind     Kind              `json:"kind"`
	Role     models.LegacyRole `json:"legacy_role"`
	Email    string            `json:"email"`
	EntityID *uuid.UUID        `json:"entity_id,omitempty"`
}

// UserID returns the subject as a UUID
func (c *LegacyClaims) UserID() uuid.UUID {
	return subjectID(c.Subject)
}

func (c *LegacyClaims) validate() error {
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("%w: sub", ErrMissingClaims)
	}
	if _, err := models.ParseLegacyRole(string(c.Role)); err != nil {
		return fmt.Errorf("%w: legacy_role", ErrMissingClaims)
	}
	if c.Role == models.LegacyRoleInstitution && c.EntityID == nil {
		return fmt.Errorf("%w: entity_id", ErrMissingClaims)
	}
	return nil
}

// envelope decodes any variant; Kind selects which fields are meaningful
type envelope struct {
	jwt.RegisteredClaims
	Kind       Kind              `json:"kind"`
	Email      string            `json:"email,omitempty"`
	Role       string            `json:"role,omitempty"`
	Contexts   []models.Context  `json:"contexts,omitempty"`
	AdminLevel models.AdminLevel `json:"admin_level,omitempty"`
	Scope      Scope             `json:"scope,omitempty"`
	Context    models.Context    `json:"context,omitempty"`
	EntityID   *uuid.UUID        `json:"entity_id,omitempty"`
	LegacyRole models.LegacyRole `json:"legacy_role,omitempty"`
}

// Verified is the tagged union returned by Codec.Parse. Exactly one variant is set.
type Verified struct {
	Kind     Kind
	Identity *IdentityClaims
	Context  *ContextClaims
	Legacy   *LegacyClaims
}

// UserID returns the subject of whichever variant is set
func (v *Verified) UserID() uuid.UUID {
	switch v.Kind {
	case KindIdentity:
		return v.Identity.UserID()
	case KindContext:
		return v.Context.UserID()
	case KindLegacy:
		return v.Legacy.UserID()
	}
	return uuid.Nil
}

func (e *envelope) resolve() (*Verified, error) {
	switch e.Kind {
	case KindIdentity:
		c := &IdentityClaims{
			RegisteredClaims: e.RegisteredClaims,
			Kind:             e.Kind,
			Email:            e.Email,
			Role:             e.Role,
			Contexts:         e.Contexts,
			AdminLevel:       e.AdminLevel,
			Scope:            e.Scope,
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return &Verified{Kind: e.Kind, Identity: c}, nil
	case KindContext:
		c := &ContextClaims{
			RegisteredClaims: e.RegisteredClaims,
			Kind:             e.Kind,
			Context:          e.Context,
			EntityID:         e.EntityID,
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return &Verified{Kind: e.Kind, Context: c}, nil
	case KindLegacy:
		c := &LegacyClaims{
			RegisteredClaims: e.RegisteredClaims,
			Kind:             e.Kind,
			Role:             e.LegacyRole,
			Email:            e.Email,
			EntityID:         e.EntityID,
		}
		if err := c.validate(); err != nil {
			return nil, err
		}
		return &Verified{Kind: e.Kind, Legacy: c}, nil
	}
	return nil, fmt.Errorf("%w: kind", ErrMissingClaims)
}

func subjectID(sub string) uuid.UUID {
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil
	}
	return id
}
