package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/auth"
	"github.com/upb/venture-hub/middleware"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/identity"
	"github.com/upb/venture-hub/tokens"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// LoginRequest is the body of a credentials login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// OTPRequest asks for a code to be emailed
type OTPRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Purpose  string `json:"purpose" validate:"omitempty,oneof=login signup"`
	EntityID string `json:"entity_id,omitempty" validate:"omitempty,uuid"`
}

// OTPRequestResponse identifies the session the code belongs to
type OTPRequestResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// OTPVerifyRequest submits a code
type OTPVerifyRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
}

// CompleteSignupRequest finishes an OTP signup
type CompleteSignupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Password string `json:"password" validate:"required"`
}

// MeResponse describes the caller
type MeResponse struct {
	User          *models.User      `json:"user"`
	TokenKind     tokens.Kind       `json:"token_kind"`
	ActiveContext models.Context    `json:"active_context"`
	LegacyRole    models.LegacyRole `json:"legacy_role,omitempty"`
}

// AuthHandler handles signup, login, OTP and logout requests
type AuthHandler struct {
	identity IdentityService
	otp      OTPService
	exchange ExchangeVerifier
	sessions SessionEvicter
	cookies  CookieConfig
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(identity IdentityService, otp OTPService, exchange ExchangeVerifier, sessions SessionEvicter, cookies CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		otp:      otp,
		exchange: exchange,
		sessions: sessions,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleSignup handles POST /api/v1/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req identity.SignupInput
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.identity.Signup(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.setIdentityCookie(w, result.Token)
	_ = utils.WriteCreated(w, sessionResponse(result))
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.identity.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.setIdentityCookie(w, result.Token)
	_ = utils.WriteOK(w, sessionResponse(result))
}

// HandleRequestOTP handles POST /api/v1/auth/otp/request. A failed email
// keeps the stored code and answers 500 so the client can ask again.
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	purpose, err := models.ParseOTPPurpose(req.Purpose)
	if err != nil {
		HandleServiceError(w, services.ErrInvalidOTPPurpose, h.logger)
		return
	}
	entityID, err := parseOptionalUUID(req.EntityID)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid entity_id format", nil)
		return
	}

	session, err := h.otp.RequestCode(r.Context(), req.Email, purpose, entityID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, OTPRequestResponse{SessionID: session.ID, ExpiresAt: session.ExpiresAt})
}

// HandleVerifyOTP handles POST /api/v1/auth/otp/verify
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid session_id format", nil)
		return
	}

	session, outcome, err := h.otp.Verify(r.Context(), sessionID, req.Code)
	if err == nil {
		err = outcome.Err()
	}
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	result, err := h.identity.CompleteOTP(r.Context(), session)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if result.Scope == tokens.ScopeSession {
		h.setIdentityCookie(w, result.Token)
	}
	_ = utils.WriteOK(w, SessionResponse{
		User:      result.User,
		Token:     result.Token.Token,
		ExpiresAt: result.Token.ExpiresAt,
		Scope:     result.Scope,
	})
}

// HandleCompleteSignup handles POST /api/v1/auth/signup/complete. The
// caller presents the exchange token from a verified signup code.
func (h *AuthHandler) HandleCompleteSignup(w http.ResponseWriter, r *http.Request) {
	exchange, err := h.exchange.VerifyExchange(r.Context(), r.Header)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	var req CompleteSignupRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.identity.CompleteSignup(r.Context(), exchange, req.Name, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.setIdentityCookie(w, result.Token)
	_ = utils.WriteCreated(w, sessionResponse(result))
}

// HandleLogout handles POST /api/v1/auth/logout. Every token cookie is
// cleared and any cached legacy session for a presented token is evicted.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	names := []string{middleware.AuthTokenCookie, middleware.ContextTokenCookie}
	for _, role := range models.LegacyRoles {
		names = append(names, role.TokenKey())
	}

	presented := make([]string, 0, len(names)+1)
	if token := middleware.BearerToken(r.Header); token != "" {
		presented = append(presented, token)
	}
	for _, name := range names {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			presented = append(presented, c.Value)
		}
		auth.ClearTokenCookie(w, name, h.cookies.Secure)
	}

	evicted := 0
	for _, token := range presented {
		if h.sessions.Evict(token) {
			evicted++
		}
	}
	h.logger.Debug("logout", zap.Int("evicted_sessions", evicted))

	_ = utils.WriteOK(w, map[string]string{"message": "Logged out"})
}

// HandleMe handles GET /api/v1/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.identity.Me(r.Context(), p.UserID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	resp := MeResponse{User: user, TokenKind: p.Kind, ActiveContext: user.ActiveContext}
	if p.Context != nil {
		resp.ActiveContext = p.Context.Context
	}
	if p.Legacy != nil {
		resp.LegacyRole = p.Legacy.Role
	}
	_ = utils.WriteOK(w, resp)
}

func (h *AuthHandler) setIdentityCookie(w http.ResponseWriter, token *identity.IssuedToken) {
	auth.SetTokenCookie(w, middleware.AuthTokenCookie, token.Token, time.Until(token.ExpiresAt), h.cookies.Secure)
}

func sessionResponse(result *identity.AuthResult) SessionResponse {
	return SessionResponse{
		User:      result.User,
		Token:     result.Token.Token,
		ExpiresAt: result.Token.ExpiresAt,
		Scope:     tokens.ScopeSession,
	}
}
