// Package identity owns user accounts and the identity tokens issued for them.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/venture-hub/internal/observability"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/activity"
	"github.com/upb/venture-hub/tokens"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// Config holds token lifetimes and password policy
type Config struct {
	IdentityTTL       time.Duration
	ExchangeTTL       time.Duration
	MinPasswordLength int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		IdentityTTL:       7 * 24 * time.Hour,
		ExchangeTTL:       10 * time.Minute,
		MinPasswordLength: 8,
	}
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, stored string) bool
}

// IssuedToken is a signed identity token
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResult is returned by every flow that ends in a session
type AuthResult struct {
	User  *models.User `json:"user"`
	Token *IssuedToken `json:"token"`
}

// OTPResult is the outcome of completing a verified OTP session. User is nil
// for signup sessions, where Token is an exchange token for CompleteSignup.
type OTPResult struct {
	User  *models.User `json:"user,omitempty"`
	Token *IssuedToken `json:"token"`
	Scope tokens.Scope `json:"scope"`
}

// SignupInput is the payload of a credentials signup
type SignupInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProviderProfile is the identity asserted by an external provider.
// EmailVerified must be set before the profile may be matched to a user
// by email.
type ProviderProfile struct {
	Provider      models.Provider
	AccountID     string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     *string
}

// Service handles signup, login and account lookups
type Service struct {
	users    repositories.UserRepository
	accounts repositories.AuthAccountRepository
	txMgr    repositories.TransactionManager
	codec    *tokens.Codec
	hasher   PasswordHasher
	recorder activity.Recorder
	metrics  observability.Metrics
	cfg      Config
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithConfig overrides lifetimes and password policy
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		defaults := DefaultConfig()
		if cfg.IdentityTTL <= 0 {
			cfg.IdentityTTL = defaults.IdentityTTL
		}
		if cfg.ExchangeTTL <= 0 {
			cfg.ExchangeTTL = defaults.ExchangeTTL
		}
		if cfg.MinPasswordLength <= 0 {
			cfg.MinPasswordLength = defaults.MinPasswordLength
		}
		s.cfg = cfg
	}
}

// WithMetrics reports login outcomes
func WithMetrics(m observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new identity service
func NewService(
	users repositories.UserRepository,
	accounts repositories.AuthAccountRepository,
	txMgr repositories.TransactionManager,
	codec *tokens.Codec,
	hasher PasswordHasher,
	recorder activity.Recorder,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		users:    users,
		accounts: accounts,
		txMgr:    txMgr,
		codec:    codec,
		hasher:   hasher,
		recorder: recorder,
		metrics:  observability.NopMetrics{},
		cfg:      DefaultConfig(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueIdentityToken signs a session token for user. A nil contexts uses the
// user's unlocked set; explorer is always included.
func (s *Service) IssueIdentityToken(user *models.User, contexts []models.Context) (*IssuedToken, error) {
	if contexts == nil {
		contexts = user.UnlockedContexts
	}
	snapshot := make([]models.Context, 0, len(contexts)+1)
	if !models.ContainsContext(contexts, models.ContextExplorer) {
		snapshot = append(snapshot, models.ContextExplorer)
	}
	snapshot = append(snapshot, contexts...)

	claims := tokens.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
		Email:            user.Email,
		Role:             "user",
		Contexts:         snapshot,
		Scope:            tokens.ScopeSession,
	}
	if user.IsAdmin() && models.ContainsContext(snapshot, models.ContextAdmin) {
		claims.Role = "admin"
		claims.AdminLevel = *user.AdminLevel
	}

	token, expiresAt, err := s.codec.SignIdentity(claims, s.cfg.IdentityTTL)
	if err != nil {
		return nil, services.WrapInternal("failed to sign identity token", err)
	}
	return &IssuedToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Signup creates a user with a credentials account and signs them in
func (s *Service) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	user, err := s.createWithPassword(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		s.metrics.RecordLogin("signup", string(services.GetErrorType(err)))
		return nil, err
	}
	s.metrics.RecordLogin("signup", "success")
	return s.session(user, models.ActivitySignup, "credentials")
}

// Authenticate checks email and password. Every mismatch is the same
// InvalidCredentials error so callers cannot tell which part was wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load user", err)
	}

	account, err := s.accounts.GetByUserAndProvider(ctx, user.ID, models.ProviderCredentials)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load credentials", err)
	}
	if account.PasswordHash == nil || !s.hasher.Verify(password, *account.PasswordHash) {
		return nil, services.ErrInvalidCredentials
	}
	return user, nil
}

// Login signs a user in with email and password
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.metrics.RecordLogin("password", string(services.GetErrorType(err)))
		return nil, err
	}
	s.metrics.RecordLogin("password", "success")
	return s.session(user, models.ActivityLogin, "credentials")
}

// CompleteOTP finishes a verified OTP session. Login sessions find or
// create the user and return a session token; signup sessions return a
// short lived exchange token and create nothing.
func (s *Service) CompleteOTP(ctx context.Context, session *models.OTPSession) (*OTPResult, error) {
	if session == nil || !session.Verified {
		return nil, services.ErrOTPInvalidOrExpired
	}

	if session.Purpose == models.OTPPurposeSignup {
		token, expiresAt, err := s.codec.SignIdentity(tokens.IdentityClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: session.ID.String()},
			Email:            session.Email,
			Contexts:         []models.Context{models.ContextExplorer},
			Scope:            tokens.ScopeOTPExchange,
		}, s.cfg.ExchangeTTL)
		if err != nil {
			return nil, services.WrapInternal("failed to sign exchange token", err)
		}
		return &OTPResult{Token: &IssuedToken{Token: token, ExpiresAt: expiresAt}, Scope: tokens.ScopeOTPExchange}, nil
	}

	user, err := s.findOrCreateByEmail(ctx, session.Email, "", models.ProviderEmailOTP, session.Email, nil)
	if err != nil {
		s.metrics.RecordLogin("otp", string(services.GetErrorType(err)))
		return nil, err
	}
	s.metrics.RecordLogin("otp", "success")

	result, err := s.session(user, models.ActivityLogin, "otp")
	if err != nil {
		return nil, err
	}
	return &OTPResult{User: result.User, Token: result.Token, Scope: tokens.ScopeSession}, nil
}

// CompleteSignup creates the account for the email proven by an exchange token
func (s *Service) CompleteSignup(ctx context.Context, exchange *tokens.IdentityClaims, name, password string) (*AuthResult, error) {
	if exchange == nil || exchange.Scope != tokens.ScopeOTPExchange {
		return nil, services.ErrUnauthenticated
	}
	user, err := s.createWithPassword(ctx, name, exchange.Email, password)
	if err != nil {
		s.metrics.RecordLogin("otp_signup", string(services.GetErrorType(err)))
		return nil, err
	}
	s.metrics.RecordLogin("otp_signup", "success")
	return s.session(user, models.ActivitySignup, "otp")
}

// LoginWithProvider signs in through an external provider. An unknown
// provider account is linked to the user with the same email, or a new
// user is created; both require a provider verified email.
func (s *Service) LoginWithProvider(ctx context.Context, p ProviderProfile) (*AuthResult, error) {
	if p.AccountID == "" {
		return nil, services.ErrInvalidInput.WithDetail("field", "account_id")
	}

	method := string(p.Provider)
	account, err := s.accounts.GetByProviderAccount(ctx, p.Provider, p.AccountID)
	var user *models.User
	switch {
	case err == nil:
		user, err = s.users.GetByID(ctx, account.UserID)
		if err != nil {
			return nil, services.WrapInternal("failed to load user", err)
		}
	case errors.Is(err, repositories.ErrNotFound):
		if !p.EmailVerified {
			s.metrics.RecordLogin(method, string(services.ErrorTypeUnauthenticated))
			return nil, services.ErrUnverifiedEmail
		}
		user, err = s.findOrCreateByEmail(ctx, p.Email, p.Name, p.Provider, p.AccountID, p.AvatarURL)
		if err != nil {
			s.metrics.RecordLogin(method, string(services.GetErrorType(err)))
			return nil, err
		}
	default:
		return nil, services.WrapInternal("failed to load provider account", err)
	}

	s.metrics.RecordLogin(method, "success")
	return s.session(user, models.ActivityLogin, method)
}

// UnlockContext grants a context to a user. Granting one already held is a
// no-op. Admin access carries a level and is not granted here.
func (s *Service) UnlockContext(ctx context.Context, userID uuid.UUID, c models.Context) (*models.User, error) {
	if !c.Valid() {
		return nil, services.ErrInvalidContext
	}
	if c == models.ContextAdmin {
		return nil, services.ErrForbidden
	}

	user, changed, err := s.users.AddUnlockedContext(ctx, userID, c)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to unlock context", err)
	}
	if !changed {
		return user, nil
	}

	s.recorder.Record(models.NewActivityLog(user.ID, models.ActivityContextUnlocked).
		WithTransition("", c))
	s.logger.Info("context unlocked",
		zap.String("user_id", user.ID.String()),
		zap.String("context", string(c)))
	return user, nil
}

// Me returns the current user row
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load user", err)
	}
	return user, nil
}

func (s *Service) session(user *models.User, action models.ActivityAction, method string) (*AuthResult, error) {
	token, err := s.IssueIdentityToken(user, nil)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(models.NewActivityLog(user.ID, action).
		WithDetails(map[string]string{"method": method}))
	return &AuthResult{User: user, Token: token}, nil
}

func (s *Service) createWithPassword(ctx context.Context, name, email, password string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, services.ErrInvalidEmail
	}
	if strings.TrimSpace(name) == "" {
		return nil, services.ErrInvalidInput.WithDetail("field", "name")
	}
	if len(password) < s.cfg.MinPasswordLength {
		return nil, services.ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(name, email)
	return s.create(ctx, user, models.NewCredentialsAccount(user.ID, email, hash))
}

// findOrCreateByEmail links a provider account to the user owning email,
// creating the user when none exists
func (s *Service) findOrCreateByEmail(ctx context.Context, email, name string, provider models.Provider, accountID string, avatar *string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, services.ErrInvalidEmail
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if _, err := s.accounts.GetByUserAndProvider(ctx, user.ID, provider); err == nil {
			return user, nil
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapInternal("failed to load provider account", err)
		}
		if err := s.accounts.Create(ctx, models.NewProviderAccount(user.ID, provider, accountID)); err != nil && !errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.WrapInternal("failed to link provider account", err)
		}
		return user, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, services.WrapInternal("failed to load user", err)
	}

	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user = models.NewUser(name, email)
	user.AvatarURL = avatar
	created, err := s.create(ctx, user, models.NewProviderAccount(user.ID, provider, accountID))
	if err != nil {
		if !services.IsConflictError(err) {
			return nil, err
		}
		// Lost a race with a concurrent first login for the same email.
		return s.users.GetByEmail(ctx, email)
	}
	return created, nil
}

// create inserts the user and its first auth account together
func (s *Service) create(ctx context.Context, user *models.User, account *models.AuthAccount) (*models.User, error) {
	created, err := services.WithTransactionResult(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (*models.User, error) {
		if err := s.users.WithTx(tx).Create(ctx, user); err != nil {
			return nil, err
		}
		if err := s.accounts.WithTx(tx).Create(ctx, account); err != nil {
			return nil, err
		}
		return user, nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, services.ErrDuplicateEmail
		}
		return nil, services.WrapInternal("failed to create user", err)
	}

	s.logger.Info("user created",
		zap.String("user_id", created.ID.String()),
		zap.String("provider", string(account.Provider)))
	return created, nil
}
