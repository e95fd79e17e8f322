package handlers

import (
	"net/http"
	"time"

	"github.com/upb/venture-hub/auth"
	"github.com/upb/venture-hub/middleware"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// LegacyLoginRequest is a per-role login
type LegacyLoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
	EntityID string `json:"entity_id,omitempty" validate:"omitempty,uuid"`
}

// LegacyHandler serves the per-role token flows kept for older clients
type LegacyHandler struct {
	issuer  LegacyIssuer
	cookies CookieConfig
	logger  *zap.Logger
}

// NewLegacyHandler creates a new LegacyHandler
func NewLegacyHandler(issuer LegacyIssuer, cookies CookieConfig, logger *zap.Logger) *LegacyHandler {
	return &LegacyHandler{
		issuer:  issuer,
		cookies: cookies,
		logger:  logger,
	}
}

// HandleLogin handles POST /api/v1/legacy/login and sets the <role>_token cookie
func (h *LegacyHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LegacyLoginRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	entityID, err := parseOptionalUUID(req.EntityID)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid entity_id format", nil)
		return
	}

	issued, err := h.issuer.Login(r.Context(), req.Email, req.Password, req.Role, entityID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	auth.SetTokenCookie(w, issued.Key, issued.Token, time.Until(issued.ExpiresAt), h.cookies.Secure)
	_ = utils.WriteOK(w, issued)
}

// HandleInstitutionSession handles GET /api/v1/legacy/institution/session
func (h *LegacyHandler) HandleInstitutionSession(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	if p.Institution == nil {
		HandleServiceError(w, services.ErrForbidden, h.logger)
		return
	}
	_ = utils.WriteOK(w, p.Institution)
}
