package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services/identity"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName = "oauth_state"
	// SessionCookieName is the cookie that carries the identity token
	SessionCookieName = "auth_token"
	stateCookieMaxAge = 10 * time.Minute

	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// ProviderLogin turns a provider-asserted profile into a session
type ProviderLogin interface {
	LoginWithProvider(ctx context.Context, p identity.ProviderProfile) (*identity.AuthResult, error)
}

// GoogleConfig configures the Google login flow. Endpoint and UserInfoURL
// default to Google's and can be pointed at a test server.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	FrontendURL  string
	Secure       bool
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// Handler handles the Google OAuth2 login and callback
type Handler struct {
	oauth       *oauth2.Config
	userInfoURL string
	frontendURL string
	secure      bool
	logins      ProviderLogin
	logger      *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(cfg GoogleConfig, logins ProviderLogin, logger *zap.Logger) *Handler {
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = endpoints.Google
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultGoogleUserInfoURL
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "/"
	}
	return &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: cfg.UserInfoURL,
		frontendURL: cfg.FrontendURL,
		secure:      cfg.Secure,
		logins:      logins,
		logger:      logger,
	}
}

// HandleLogin redirects to Google's consent page
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback exchanges the authorization code, logs the Google account
// in and sets the identity cookie
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	ClearTokenCookie(w, StateCookieName, h.secure)

	profile, err := h.fetchProfile(r.Context(), code)
	if err != nil {
		h.logger.Warn("google login failed", zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	result, err := h.logins.LoginWithProvider(r.Context(), *profile)
	if err != nil {
		h.logger.Error("provider login failed",
			zap.String("provider", string(profile.Provider)),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	SetTokenCookie(w, SessionCookieName, result.Token.Token, time.Until(result.Token.ExpiresAt), h.secure)
	http.Redirect(w, r, h.frontendURL, http.StatusFound)
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (h *Handler) fetchProfile(ctx context.Context, code string) (*identity.ProviderProfile, error) {
	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	resp, err := h.oauth.Client(ctx, token).Get(h.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("incomplete user info response")
	}
	// An unverified address could claim an existing account by email
	if !info.EmailVerified {
		return nil, fmt.Errorf("google email %q is not verified", info.Email)
	}

	profile := &identity.ProviderProfile{
		Provider:      models.ProviderGoogle,
		AccountID:     info.Sub,
		Email:         info.Email,
		EmailVerified: true,
		Name:          info.Name,
	}
	if info.Picture != "" {
		profile.AvatarURL = &info.Picture
	}
	return profile, nil
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
