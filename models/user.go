package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the global identity shared by every context
type User struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	Name             string      `json:"name" db:"name"`
	Email            string      `json:"email" db:"email"`
	Phone            *string     `json:"phone,omitempty" db:"phone"`
	AvatarURL        *string     `json:"avatar_url,omitempty" db:"avatar_url"`
	UnlockedContexts []Context   `json:"unlocked_contexts" db:"unlocked_contexts"`
	ActiveContext    Context     `json:"active_context" db:"active_context"`
	AdminLevel       *AdminLevel `json:"admin_level,omitempty" db:"admin_level"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NormalizeEmail trims and lowercases an address. Emails are unique case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser creates a user with only the explorer context unlocked
func NewUser(name, email string) *User {
	now := time.Now().UTC()
	return &User{
		ID:               uuid.New(),
		Name:             strings.TrimSpace(name),
		Email:            NormalizeEmail(email),
		UnlockedContexts: []Context{ContextExplorer},
		ActiveContext:    ContextExplorer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// HasContext reports whether the user unlocked c
func (u *User) HasContext(c Context) bool {
	return ContainsContext(u.UnlockedContexts, c)
}

// Unlock adds c to the unlocked set. It returns false if c was already present.
func (u *User) Unlock(c Context) bool {
	u.EnsureExplorer()
	if u.HasContext(c) {
		return false
	}
	u.UnlockedContexts = append(u.UnlockedContexts, c)
	u.UpdatedAt = time.Now().UTC()
	return true
}

// EnsureExplorer restores the explorer context if a stored row lost it
func (u *User) EnsureExplorer() {
	if !u.HasContext(ContextExplorer) {
		u.UnlockedContexts = append([]Context{ContextExplorer}, u.UnlockedContexts...)
	}
}

// IsAdmin returns true if the user holds the admin context and a valid level
func (u *User) IsAdmin() bool {
	return u.HasContext(ContextAdmin) && u.AdminLevel != nil && u.AdminLevel.Valid()
}
