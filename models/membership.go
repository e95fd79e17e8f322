package models

import (
	"github.com/google/uuid"
)

// Membership is a user's relation to a startup (startup_founders) or an
// institution (institution_members), joined with the entity's display fields.
type Membership struct {
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	EntityID      uuid.UUID  `json:"entity_id" db:"entity_id"`
	Role          string     `json:"role" db:"role"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty" db:"application_id"`
	EntityName    string     `json:"entity_name" db:"name"`
	LogoURL       *string    `json:"logo_url,omitempty" db:"logo_url"`
}

// EntitySummary is the denormalized view of a context's target returned after a switch
type EntitySummary struct {
	Context Context    `json:"context"`
	ID      *uuid.UUID `json:"id,omitempty"`
	Name    string     `json:"name"`
	LogoURL *string    `json:"logo_url,omitempty"`
	Role    string     `json:"role,omitempty"`
}

// Summary builds the display summary of the membership's entity
func (m *Membership) Summary(c Context) *EntitySummary {
	id := m.EntityID
	return &EntitySummary{
		Context: c,
		ID:      &id,
		Name:    m.EntityName,
		LogoURL: m.LogoURL,
		Role:    m.Role,
	}
}

// UserSummary builds the summary for contexts that are not bound to an entity
func UserSummary(c Context, u *User) *EntitySummary {
	return &EntitySummary{
		Context: c,
		Name:    u.Name,
		LogoURL: u.AvatarURL,
	}
}
