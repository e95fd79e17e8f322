// Package legacy bridges pre-unification per-role tokens onto the unified
// identity and context model.
package legacy

import (
	"net/http"
	"time"

	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/tokens"
)

// UnifiedTokenKey is the cookie and storage key of the identity token
const UnifiedTokenKey = "auth_token"

// TokenStore looks up a stored token by key. Empty values count as absent.
type TokenStore interface {
	Lookup(key string) (string, bool)
}

// MapStore adapts a plain map, e.g. values read from client storage
type MapStore map[string]string

// Lookup implements TokenStore
func (m MapStore) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok && v != ""
}

// CookieStore adapts the cookies of an inbound request
type CookieStore struct {
	r *http.Request
}

// NewCookieStore creates a store over r's cookies
func NewCookieStore(r *http.Request) CookieStore {
	return CookieStore{r: r}
}

// Lookup implements TokenStore
func (s CookieStore) Lookup(key string) (string, bool) {
	c, err := s.r.Cookie(key)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// ResolvedToken is the token picked by ResolveSessionToken
type ResolvedToken struct {
	Token string
	Key   string
	// Role is empty when the unified token was picked
	Role models.LegacyRole
}

// Unified reports whether the unified identity token was picked
func (r *ResolvedToken) Unified() bool {
	return r.Role == ""
}

// ResolveSessionToken picks the token a client should present. The unified
// token wins while it is unexpired. Otherwise the hinted role's token is
// used, and with no hint the first present role token in LegacyRoles order.
// Expiry is read without verifying the signature; the server still verifies.
func ResolveSessionToken(store TokenStore, hint models.LegacyRole, now time.Time) (*ResolvedToken, bool) {
	if tok, ok := store.Lookup(UnifiedTokenKey); ok {
		if exp, err := tokens.ExpiryUnverified(tok); err == nil && now.Before(exp) {
			return &ResolvedToken{Token: tok, Key: UnifiedTokenKey}, true
		}
	}

	if hint != "" {
		if tok, ok := store.Lookup(hint.TokenKey()); ok {
			return &ResolvedToken{Token: tok, Key: hint.TokenKey(), Role: hint}, true
		}
		return nil, false
	}

	for _, role := range models.LegacyRoles {
		if tok, ok := store.Lookup(role.TokenKey()); ok {
			return &ResolvedToken{Token: tok, Key: role.TokenKey(), Role: role}, true
		}
	}
	return nil, false
}
