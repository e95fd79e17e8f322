package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/internal/observability"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/legacy"
	"github.com/upb/venture-hub/services/sessioncache"
	"github.com/upb/venture-hub/tokens"
	"go.uber.org/zap"
)

// Token transport names
const (
	AuthTokenCookie    = "auth_token"
	ContextTokenCookie = "context_token"
	ContextTokenHeader = "X-Context-Token"
)

// InstitutionVerifier confirms legacy institution tokens
type InstitutionVerifier interface {
	Verify(ctx context.Context, token string) (*sessioncache.InstitutionSession, error)
}

// Principal is the caller resolved by the gate. Exactly one of Identity,
// Legacy or Context is set by VerifyBearer; RequireContext also fills
// Context for identity callers.
type Principal struct {
	UserID      uuid.UUID
	Email       string
	Kind        tokens.Kind
	Token       string
	Identity    *tokens.IdentityClaims
	Legacy      *tokens.LegacyClaims
	Context     *tokens.ContextClaims
	Institution *sessioncache.InstitutionSession
}

// Roles lists everything the principal can be matched against: the account
// role, unlocked contexts and the legacy role with its mapped context.
func (p *Principal) Roles() []string {
	var roles []string
	switch p.Kind {
	case tokens.KindIdentity:
		if p.Identity.Role != "" {
			roles = append(roles, p.Identity.Role)
		}
		for _, c := range p.Identity.Contexts {
			roles = append(roles, string(c))
		}
	case tokens.KindLegacy:
		roles = append(roles, string(p.Legacy.Role))
		if c, ok := p.Legacy.Role.Context(); ok {
			roles = append(roles, string(c))
		}
	case tokens.KindContext:
		roles = append(roles, string(p.Context.Context))
	}
	return roles
}

// HasRole reports whether role is among Roles
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// AdminLevel returns the admin level of an identity principal
func (p *Principal) AdminLevel() models.AdminLevel {
	if p.Kind == tokens.KindIdentity {
		return p.Identity.AdminLevel
	}
	return ""
}

// Gate makes authorization decisions from request headers. Decisions are
// pure apart from the institution confirmation, which may hit the cache or
// the database.
type Gate struct {
	codec        *tokens.Codec
	institutions InstitutionVerifier
	metrics      observability.Metrics
	logger       *zap.Logger
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithGateMetrics counts rejected tokens
func WithGateMetrics(m observability.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// NewGate creates a gate. institutions may be nil, in which case legacy
// institution tokens are accepted on their signature alone.
func NewGate(codec *tokens.Codec, institutions InstitutionVerifier, logger *zap.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		codec:        codec,
		institutions: institutions,
		metrics:      observability.NopMetrics{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// VerifyBearer authenticates the caller. The token is taken from the
// Authorization header, then an unexpired auth_token cookie, then the
// legacy role cookies in their fixed order. Every failure is ErrUnauthenticated; the
// reason is only logged and counted.
func (g *Gate) VerifyBearer(ctx context.Context, h http.Header) (*Principal, error) {
	token := g.extractToken(h)
	if token == "" {
		return nil, g.reject(ctx, "missing", nil)
	}

	verified, err := g.codec.Parse(token)
	if err != nil {
		return nil, g.reject(ctx, reason(err), err)
	}

	p := &Principal{UserID: verified.UserID(), Kind: verified.Kind, Token: token}
	switch verified.Kind {
	case tokens.KindIdentity:
		if verified.Identity.Scope != tokens.ScopeSession {
			return nil, g.reject(ctx, "scope", nil)
		}
		p.Identity = verified.Identity
		p.Email = verified.Identity.Email
	case tokens.KindContext:
		p.Context = verified.Context
	case tokens.KindLegacy:
		p.Legacy = verified.Legacy
		p.Email = verified.Legacy.Email
		if verified.Legacy.Role == models.LegacyRoleInstitution && g.institutions != nil {
			session, err := g.institutions.Verify(ctx, token)
			if err != nil {
				return nil, g.reject(ctx, "institution", err)
			}
			p.Institution = session
		}
	}
	return p, nil
}

// VerifyExchange authenticates an OTP exchange token from the Authorization header
func (g *Gate) VerifyExchange(ctx context.Context, h http.Header) (*tokens.IdentityClaims, error) {
	token := BearerToken(h)
	if token == "" {
		return nil, g.reject(ctx, "missing", nil)
	}
	claims, err := g.codec.VerifyIdentity(token)
	if err != nil {
		return nil, g.reject(ctx, reason(err), err)
	}
	if claims.Scope != tokens.ScopeOTPExchange {
		return nil, g.reject(ctx, "scope", nil)
	}
	return claims, nil
}

// RequireContext authenticates the caller and requires them to be acting as
// required. Identity callers prove it with a context token from the
// X-Context-Token header or the context_token cookie; explorer needs none.
// Legacy callers match through their role's mapped context.
func (g *Gate) RequireContext(ctx context.Context, h http.Header, required models.Context) (*Principal, error) {
	p, err := g.VerifyBearer(ctx, h)
	if err != nil {
		return nil, err
	}

	switch p.Kind {
	case tokens.KindLegacy:
		if mapped, ok := p.Legacy.Role.Context(); ok && mapped == required {
			return p, nil
		}
		return nil, services.ErrForbidden
	case tokens.KindContext:
		if p.Context.Context == required {
			return p, nil
		}
		return nil, services.ErrForbidden
	}

	if !p.Identity.HasContext(required) {
		return nil, services.ErrForbidden
	}

	raw := contextToken(h)
	if raw == "" {
		if required == models.ContextExplorer {
			return p, nil
		}
		return nil, services.ErrForbidden
	}

	claims, err := g.codec.VerifyContext(raw)
	if err != nil {
		return nil, g.reject(ctx, reason(err), err)
	}
	if claims.UserID() != p.UserID || claims.Context != required {
		g.logger.Info("context token does not match requirement",
			zap.String("user_id", p.UserID.String()),
			zap.String("required", string(required)),
			zap.String("presented", string(claims.Context)))
		return nil, services.ErrForbidden
	}
	p.Context = claims
	return p, nil
}

// RequireAdminLevel authenticates the caller and requires an admin level of at least min
func (g *Gate) RequireAdminLevel(ctx context.Context, h http.Header, min models.AdminLevel) (*Principal, error) {
	p, err := g.VerifyBearer(ctx, h)
	if err != nil {
		return nil, err
	}
	if !p.AdminLevel().AtLeast(min) {
		return nil, services.ErrInsufficientLevel
	}
	return p, nil
}

// RequireAuth authenticates the caller and, when allowedRoles is not empty,
// requires one of them
func (g *Gate) RequireAuth(ctx context.Context, h http.Header, allowedRoles ...string) (*Principal, error) {
	p, err := g.VerifyBearer(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(allowedRoles) == 0 {
		return p, nil
	}
	for _, role := range allowedRoles {
		if p.HasRole(role) {
			return p, nil
		}
	}
	return nil, services.ErrForbidden
}

// RequireRole is RequireAuth with a single role
func (g *Gate) RequireRole(ctx context.Context, h http.Header, role string) (*Principal, error) {
	return g.RequireAuth(ctx, h, role)
}

// RequireMentor admits unified mentors and legacy mentor tokens
func (g *Gate) RequireMentor(ctx context.Context, h http.Header) (*Principal, error) {
	return g.RequireAuth(ctx, h, string(models.ContextMentor))
}

func (g *Gate) reject(ctx context.Context, why string, err error) error {
	g.metrics.RecordTokenRejected(why)
	fields := []zap.Field{zap.String("reason", why)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	observability.LoggerFromContext(ctx, g.logger).Debug("token rejected", fields...)
	return services.ErrUnauthenticated
}

func reason(err error) string {
	switch {
	case errors.Is(err, tokens.ErrTokenExpired):
		return "expired"
	case errors.Is(err, tokens.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, tokens.ErrMissingClaims):
		return "missing_claims"
	case errors.Is(err, tokens.ErrWrongKind):
		return "wrong_kind"
	case errors.Is(err, tokens.ErrTokenMalformed):
		return "malformed"
	}
	return "invalid"
}

// extractToken applies the fixed lookup order for the caller's token. An
// expired auth_token cookie yields to a legacy role cookie; with none
// present it is still returned so the rejection reason stays accurate.
func (g *Gate) extractToken(h http.Header) string {
	if token := BearerToken(h); token != "" {
		return token
	}
	store := legacy.NewCookieStore(&http.Request{Header: h})
	if resolved, ok := legacy.ResolveSessionToken(store, "", g.codec.Now()); ok {
		return resolved.Token
	}
	return cookieValue(h, AuthTokenCookie)
}

func contextToken(h http.Header) string {
	if token := strings.TrimSpace(h.Get(ContextTokenHeader)); token != "" {
		return token
	}
	return cookieValue(h, ContextTokenCookie)
}

// BearerToken extracts the token of an Authorization header whose scheme
// is Bearer in any case. It returns "" otherwise.
func BearerToken(h http.Header) string {
	parts := strings.SplitN(h.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func cookieValue(h http.Header, name string) string {
	r := http.Request{Header: h}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
