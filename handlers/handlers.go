package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services/contexts"
	"github.com/upb/venture-hub/services/identity"
	"github.com/upb/venture-hub/services/legacy"
	"github.com/upb/venture-hub/services/otp"
	"github.com/upb/venture-hub/tokens"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// IdentityService is the account surface used by the handlers
type IdentityService interface {
	Signup(ctx context.Context, in identity.SignupInput) (*identity.AuthResult, error)
	Login(ctx context.Context, email, password string) (*identity.AuthResult, error)
	CompleteOTP(ctx context.Context, session *models.OTPSession) (*identity.OTPResult, error)
	CompleteSignup(ctx context.Context, exchange *tokens.IdentityClaims, name, password string) (*identity.AuthResult, error)
	UnlockContext(ctx context.Context, userID uuid.UUID, c models.Context) (*models.User, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// OTPService issues and consumes one-time codes
type OTPService interface {
	RequestCode(ctx context.Context, email string, purpose models.OTPPurpose, entityID *uuid.UUID) (*models.OTPSession, error)
	Verify(ctx context.Context, sessionID uuid.UUID, code string) (*models.OTPSession, otp.Outcome, error)
}

// ExchangeVerifier authenticates an OTP exchange token
type ExchangeVerifier interface {
	VerifyExchange(ctx context.Context, h http.Header) (*tokens.IdentityClaims, error)
}

// SessionEvicter drops cached legacy sessions on logout
type SessionEvicter interface {
	Evict(token string) bool
}

// ContextSwitcher mints context tokens
type ContextSwitcher interface {
	Switch(ctx context.Context, identity *tokens.IdentityClaims, requested, entityID string) (*contexts.SwitchResult, error)
}

// LegacyIssuer mints per-role tokens
type LegacyIssuer interface {
	Login(ctx context.Context, email, password, role string, entityID *uuid.UUID) (*legacy.IssuedToken, error)
}

// ActivityLister reads a user's activity trail
type ActivityLister interface {
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.ActivityLog, error)
}

// CookieConfig controls the cookies the handlers set
type CookieConfig struct {
	Secure bool
}

// SessionResponse is returned by every endpoint that issues a token
type SessionResponse struct {
	User      *models.User `json:"user,omitempty"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Scope     tokens.Scope `json:"scope,omitempty"`
}

// decodeJSON parses and validates a request body. It writes the 400 itself
// and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Debug("failed to parse request body", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleValidationError(w, err, logger)
		return false
	}
	return true
}

// parseOptionalUUID parses s, returning nil for an empty string
func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
