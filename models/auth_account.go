package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies how an auth account proves identity
type Provider string

const (
	ProviderCredentials Provider = "credentials"
	ProviderGoogle      Provider = "google"
	ProviderEmailOTP    Provider = "email_otp"
)

// AuthAccount binds a login method to a user. A user owns at most one per provider.
type AuthAccount struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	Provider          Provider  `json:"provider" db:"provider"`
	ProviderAccountID string    `json:"provider_account_id" db:"provider_account_id"`
	PasswordHash      *string   `json:"-" db:"password_hash"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuthAccount model
func (AuthAccount) TableName() string {
	return "auth_accounts"
}

// NewCredentialsAccount creates a password account keyed by the normalized email
func NewCredentialsAccount(userID uuid.UUID, email, passwordHash string) *AuthAccount {
	return &AuthAccount{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          ProviderCredentials,
		ProviderAccountID: NormalizeEmail(email),
		PasswordHash:      &passwordHash,
		CreatedAt:         time.Now().UTC(),
	}
}

// NewProviderAccount creates an account for an external identity provider
func NewProviderAccount(userID uuid.UUID, provider Provider, providerAccountID string) *AuthAccount {
	return &AuthAccount{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
		CreatedAt:         time.Now().UTC(),
	}
}
