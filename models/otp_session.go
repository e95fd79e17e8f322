package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OTPPurpose tells the verifier what a successful code unlocks
type OTPPurpose string

const (
	OTPPurposeLogin  OTPPurpose = "login"
	OTPPurposeSignup OTPPurpose = "signup"
)

// ParseOTPPurpose validates a raw purpose, defaulting to login
func ParseOTPPurpose(s string) (OTPPurpose, error) {
	switch OTPPurpose(s) {
	case "", OTPPurposeLogin:
		return OTPPurposeLogin, nil
	case OTPPurposeSignup:
		return OTPPurposeSignup, nil
	}
	return "", fmt.Errorf("unknown otp purpose %q", s)
}

// OTPSession is a single-use proof of email ownership
type OTPSession struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Email      string     `json:"email" db:"email"`
	Code       string     `json:"-" db:"otp"`
	Purpose    OTPPurpose `json:"purpose" db:"purpose"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty" db:"entity_id"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	Verified   bool       `json:"verified" db:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the OTPSession model
func (OTPSession) TableName() string {
	return "otp_sessions"
}

// NewOTPSession creates an unverified session expiring ttl after now
func NewOTPSession(email, code string, purpose OTPPurpose, now time.Time, ttl time.Duration) *OTPSession {
	return &OTPSession{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsExpired reports whether the session is past its expiry at now
func (s *OTPSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
