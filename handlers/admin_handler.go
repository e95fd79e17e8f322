package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/venture-hub/middleware"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 100
)

// UnlockContextRequest grants a context to a user
type UnlockContextRequest struct {
	Context string `json:"context" validate:"required"`
}

// AdminHandler serves the admin-only account endpoints
type AdminHandler struct {
	identity IdentityService
	activity ActivityLister
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(identity IdentityService, activity ActivityLister, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		identity: identity,
		activity: activity,
		logger:   logger,
	}
}

// HandleUnlockContext handles POST /api/v1/admin/users/{id}/contexts
func (h *AdminHandler) HandleUnlockContext(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID format", nil)
		return
	}

	var req UnlockContextRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	c, err := models.ParseContext(req.Context)
	if err != nil {
		HandleServiceError(w, services.ErrInvalidContext, h.logger)
		return
	}

	user, err := h.identity.UnlockContext(r.Context(), userID, c)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	fields := []zap.Field{
		zap.String("user_id", userID.String()),
		zap.String("context", string(c)),
	}
	if p := middleware.PrincipalFromContext(r.Context()); p != nil {
		fields = append(fields, zap.String("admin_id", p.UserID.String()))
	}
	h.logger.Info("context unlocked", fields...)

	_ = utils.WriteOK(w, user)
}

// HandleListActivity handles GET /api/v1/admin/users/{id}/activity
func (h *AdminHandler) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid user ID format", nil)
		return
	}

	limit, err := queryInt(r, "limit", defaultActivityLimit)
	if err != nil || limit <= 0 {
		_ = utils.WriteBadRequest(w, "Invalid limit", nil)
		return
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		_ = utils.WriteBadRequest(w, "Invalid offset", nil)
		return
	}

	logs, err := h.activity.List(r.Context(), userID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if logs == nil {
		logs = []*models.ActivityLog{}
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"activity": logs,
		"limit":    limit,
		"offset":   offset,
	})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
