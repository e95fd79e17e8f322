package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingSecret is returned when the codec is built without a signing secret
	ErrMissingSecret = errors.New("token signing secret is not configured")

	// ErrTokenExpired is returned when the token's expiry has passed
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMalformed is returned when the token cannot be decoded
	ErrTokenMalformed = errors.New("token malformed")

	// ErrBadSignature is returned when the signature does not match
	ErrBadSignature = errors.New("token signature invalid")

	// ErrMissingClaims is returned when required claims are absent or invalid
	ErrMissingClaims = errors.New("token missing required claims")

	// ErrWrongKind is returned when a valid token of another variant is presented
	ErrWrongKind = errors.New("unexpected token kind")
)

// Option configures a Codec
type Option func(*Codec)

// WithClock replaces time.Now for signing and expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIssuer sets the iss claim stamped on and required from every token
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// Codec signs and verifies HS256 identity, context and legacy tokens with one shared secret
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec creates a codec. An empty secret is an error.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret: []byte(secret),
		issuer: "venture-hub",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Now returns the codec's current time
func (c *Codec) Now() time.Time {
	return c.now()
}

// SignIdentity mints an identity token valid for ttl
func (c *Codec) SignIdentity(claims IdentityClaims, ttl time.Duration) (string, time.Time, error) {
	claims.Kind = KindIdentity
	if claims.Scope == "" {
		claims.Scope = ScopeSession
	}
	if err := claims.validate(); err != nil {
		return "", time.Time{}, err
	}
	exp := c.stamp(&claims.RegisteredClaims, ttl)
	token, err := c.sign(claims)
	return token, exp, err
}

// SignContext mints a context token valid for ttl
func (c *Codec) SignContext(claims ContextClaims, ttl time.Duration) (string, time.Time, error) {
	claims.Kind = KindContext
	if err := claims.validate(); err != nil {
		return "", time.Time{}, err
	}
	exp := c.stamp(&claims.RegisteredClaims, ttl)
	token, err := c.sign(claims)
	return token, exp, err
}

// SignLegacy mints a per-role token valid for ttl
func (c *Codec) SignLegacy(claims LegacyClaims, ttl time.Duration) (string, time.Time, error) {
	claims.Kind = KindLegacy
	if err := claims.validate(); err != nil {
		return "", time.Time{}, err
	}
	exp := c.stamp(&claims.RegisteredClaims, ttl)
	token, err := c.sign(claims)
	return token, exp, err
}

// Parse verifies a token of any kind and returns the resolved variant
func (c *Codec) Parse(tokenString string) (*Verified, error) {
	env := &envelope{}
	_, err := c.parser.ParseWithClaims(tokenString, env, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return env.resolve()
}

// VerifyIdentity verifies an identity token
func (c *Codec) VerifyIdentity(tokenString string) (*IdentityClaims, error) {
	v, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindIdentity {
		return nil, fmt.Errorf("%w: got %s", ErrWrongKind, v.Kind)
	}
	return v.Identity, nil
}

// VerifyContext verifies a context token
func (c *Codec) VerifyContext(tokenString string) (*ContextClaims, error) {
	v, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindContext {
		return nil, fmt.Errorf("%w: got %s", ErrWrongKind, v.Kind)
	}
	return v.Context, nil
}

// VerifyLegacy verifies a per-role token
func (c *Codec) VerifyLegacy(tokenString string) (*LegacyClaims, error) {
	v, err := c.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindLegacy {
		return nil, fmt.Errorf("%w: got %s", ErrWrongKind, v.Kind)
	}
	return v.Legacy, nil
}

// ExpiryUnverified reads the exp claim without checking the signature.
// Only for deciding which stored token to present, never for authorization.
func ExpiryUnverified(tokenString string) (time.Time, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: exp", ErrMissingClaims)
	}
	return claims.ExpiresAt.Time, nil
}

func (c *Codec) stamp(rc *jwt.RegisteredClaims, ttl time.Duration) time.Time {
	now := c.now()
	rc.Issuer = c.issuer
	rc.IssuedAt = jwt.NewNumericDate(now)
	rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return rc.ExpiresAt.Time
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// classify maps jwt errors onto the codec's failure kinds
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing), errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrMissingClaims
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
