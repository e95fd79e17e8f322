package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/tokens"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

func okHandler(seen **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestAuthenticate(t *testing.T) {
	k := newTokenKit(t)
	gate := NewGate(k.codec, nil, zap.NewNop())
	userID := uuid.New()

	t.Run("valid token stores principal", func(t *testing.T) {
		var seen *Principal
		handler := gate.Authenticate(okHandler(&seen))

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+k.identity(userID, ""))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, seen)
		assert.Equal(t, userID, seen.UserID)
		assert.Equal(t, tokens.KindIdentity, seen.Kind)
	})

	t.Run("cookie token", func(t *testing.T) {
		var seen *Principal
		handler := gate.Authenticate(okHandler(&seen))

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: AuthTokenCookie, Value: k.identity(userID, "")})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, seen)
	})

	t.Run("missing token is 401", func(t *testing.T) {
		var seen *Principal
		handler := gate.Authenticate(okHandler(&seen))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, seen)
		resp := decodeError(t, w)
		assert.Equal(t, "unauthorized", resp.Error)
		assert.Equal(t, "Authentication required", resp.Message)
	})

	t.Run("expired token is 401", func(t *testing.T) {
		var seen *Principal
		handler := gate.Authenticate(okHandler(&seen))
		tok := k.identity(userID, "")

		k.now = testNow.Add(72 * time.Hour)
		defer func() { k.now = testNow }()

		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, seen)
	})
}

func TestContextAdapter(t *testing.T) {
	k := newTokenKit(t)
	gate := NewGate(k.codec, nil, zap.NewNop())
	userID := uuid.New()
	startupID := uuid.New()
	identity := k.identity(userID, "", models.ContextStartup)

	tests := []struct {
		name       string
		context    string
		wantStatus int
	}{
		{"matching context token", k.context(userID, models.ContextStartup, &startupID), http.StatusOK},
		{"no context token", "", http.StatusForbidden},
		{"garbled context token", "garbage", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *Principal
			handler := gate.Context(models.ContextStartup)(okHandler(&seen))

			req := httptest.NewRequest(http.MethodGet, "/api/startup/dashboard", nil)
			req.Header.Set("Authorization", "Bearer "+identity)
			if tt.context != "" {
				req.Header.Set(ContextTokenHeader, tt.context)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, seen)
				require.NotNil(t, seen.Context)
				assert.Equal(t, &startupID, seen.Context.EntityID)
			}
		})
	}
}

func TestAdminLevelAdapter(t *testing.T) {
	k := newTokenKit(t)
	gate := NewGate(k.codec, nil, zap.NewNop())

	tests := []struct {
		name       string
		level      models.AdminLevel
		wantStatus int
	}{
		{"L1", models.AdminLevelL1, http.StatusForbidden},
		{"L2", models.AdminLevelL2, http.StatusOK},
		{"L3", models.AdminLevelL3, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *Principal
			handler := gate.AdminLevel(models.AdminLevelL2)(okHandler(&seen))

			req := httptest.NewRequest(http.MethodPost, "/api/admin/users/x/contexts", nil)
			req.Header.Set("Authorization", "Bearer "+k.identity(uuid.New(), tt.level, models.ContextAdmin))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusForbidden {
				resp := decodeError(t, w)
				assert.Equal(t, "forbidden", resp.Error)
				assert.Nil(t, seen)
			}
		})
	}
}

func TestRolesAndMentorAdapters(t *testing.T) {
	k := newTokenKit(t)
	gate := NewGate(k.codec, nil, zap.NewNop())
	userID := uuid.New()

	serve := func(h http.Handler, cookie *http.Cookie) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	var seen *Principal
	mentor := gate.Mentor(okHandler(&seen))
	assert.Equal(t, http.StatusOK, serve(mentor, &http.Cookie{Name: "mentor_token", Value: k.legacy(userID, models.LegacyRoleMentor, nil)}))
	assert.Equal(t, http.StatusForbidden, serve(mentor, &http.Cookie{Name: "investor_token", Value: k.legacy(userID, models.LegacyRoleInvestor, nil)}))

	investors := gate.Roles("investor")(okHandler(&seen))
	assert.Equal(t, http.StatusOK, serve(investors, &http.Cookie{Name: "investor_token", Value: k.legacy(userID, models.LegacyRoleInvestor, nil)}))
	assert.Equal(t, http.StatusForbidden, serve(investors, &http.Cookie{Name: AuthTokenCookie, Value: k.identity(userID, "")}))
}
