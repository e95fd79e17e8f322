package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/auth"
	"github.com/upb/venture-hub/middleware"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/tokens"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// SwitchContextRequest asks to act as another context
type SwitchContextRequest struct {
	Context  string `json:"context" validate:"required"`
	EntityID string `json:"entity_id,omitempty"`
}

// CurrentContextResponse describes the context the caller is acting as
type CurrentContextResponse struct {
	UserID     uuid.UUID         `json:"user_id"`
	TokenKind  tokens.Kind       `json:"token_kind"`
	Context    models.Context    `json:"context"`
	EntityID   *uuid.UUID        `json:"entity_id,omitempty"`
	Contexts   []models.Context  `json:"unlocked_contexts,omitempty"`
	AdminLevel models.AdminLevel `json:"admin_level,omitempty"`
	LegacyRole models.LegacyRole `json:"legacy_role,omitempty"`
}

// ContextHandler handles context switching
type ContextHandler struct {
	resolver ContextSwitcher
	cookies  CookieConfig
	logger   *zap.Logger
}

// NewContextHandler creates a new ContextHandler
func NewContextHandler(resolver ContextSwitcher, cookies CookieConfig, logger *zap.Logger) *ContextHandler {
	return &ContextHandler{
		resolver: resolver,
		cookies:  cookies,
		logger:   logger,
	}
}

// HandleSwitch handles POST /api/v1/context/switch. Only identity tokens
// can switch; the minted context token is also set as a cookie.
func (h *ContextHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	if p.Identity == nil {
		HandleServiceError(w, services.ErrForbidden, h.logger)
		return
	}

	var req SwitchContextRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.resolver.Switch(r.Context(), p.Identity, req.Context, req.EntityID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	auth.SetTokenCookie(w, middleware.ContextTokenCookie, result.Token, time.Until(result.ExpiresAt), h.cookies.Secure)
	_ = utils.WriteOK(w, result)
}

// HandleCurrent handles GET /api/v1/context/current and the per-context
// overview routes
func (h *ContextHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	_ = utils.WriteOK(w, currentContext(p))
}

func currentContext(p *middleware.Principal) CurrentContextResponse {
	resp := CurrentContextResponse{UserID: p.UserID, TokenKind: p.Kind, Context: models.ContextExplorer}
	if p.Identity != nil {
		resp.Contexts = p.Identity.Contexts
		resp.AdminLevel = p.Identity.AdminLevel
	}
	if p.Legacy != nil {
		resp.LegacyRole = p.Legacy.Role
		resp.EntityID = p.Legacy.EntityID
		if c, ok := p.Legacy.Role.Context(); ok {
			resp.Context = c
		}
	}
	if p.Context != nil {
		resp.Context = p.Context.Context
		resp.EntityID = p.Context.EntityID
	}
	return resp
}
