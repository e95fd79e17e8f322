package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/upb/venture-hub/auth"
	"github.com/upb/venture-hub/config"
	"github.com/upb/venture-hub/handlers"
	"github.com/upb/venture-hub/internal/observability"
	"github.com/upb/venture-hub/middleware"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/repositories/postgres"
	"github.com/upb/venture-hub/services/activity"
	"github.com/upb/venture-hub/services/contexts"
	"github.com/upb/venture-hub/services/credentials"
	"github.com/upb/venture-hub/services/identity"
	"github.com/upb/venture-hub/services/legacy"
	"github.com/upb/venture-hub/services/mail"
	"github.com/upb/venture-hub/services/otp"
	"github.com/upb/venture-hub/services/sessioncache"
	"github.com/upb/venture-hub/tokens"
	"go.uber.org/zap"
)

const (
	// otpPurgeInterval is how often expired OTP sessions are deleted
	otpPurgeInterval = 15 * time.Minute
	// otpPurgeGrace keeps expired rows around long enough to answer replays
	otpPurgeGrace = time.Hour
	// defaultStopTimeout bounds the activity drain when ctx has no deadline
	defaultStopTimeout = 5 * time.Second
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config   *config.Config
	DB       *postgres.DB
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Collector

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Services
	Codec        *tokens.Codec
	SessionCache *sessioncache.Cache
	Activity     *activity.Service
	OTP          *otp.Service
	Identity     *identity.Service
	Contexts     *contexts.Resolver
	Institutions *legacy.InstitutionSessions
	LegacyIssuer *legacy.Issuer

	// HTTP
	Gate           *middleware.Gate
	Throttle       *middleware.Throttle
	AuthHandler    *handlers.AuthHandler
	ContextHandler *handlers.ContextHandler
	LegacyHandler  *handlers.LegacyHandler
	AdminHandler   *handlers.AdminHandler
	HealthHandler  *handlers.HealthHandler
	OAuthHandler   *auth.Handler // nil when Google login is not configured

	janitorStop chan struct{}
	janitorDone chan struct{}
	closeOnce   sync.Once
	closeErr    error
}

// NewDependencies opens the database, applies migrations and wires up all
// application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.GetDB().HealthCheck(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := Build(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// Build wires every service on top of an open repository factory and starts
// the background workers. Close releases them.
func Build(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
		Registry:    prometheus.NewRegistry(),
	}
	deps.Metrics = observability.NewCollector(deps.Registry)

	deps.initRepositories()

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initHTTP(cfg)

	if err := deps.start(); err != nil {
		_ = deps.stop(defaultStopTimeout)
		return nil, fmt.Errorf("failed to start background workers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// MetricsHandler serves the Prometheus registry
func (d *Dependencies) MetricsHandler() http.Handler {
	return observability.Handler(d.Registry)
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	d.Repos = d.RepoFactory.NewRepositories()
	d.TxManager = d.RepoFactory.GetTransactionManager()
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	codec, err := tokens.NewCodec(cfg.Auth.JWTSecret, tokens.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	d.Codec = codec

	d.SessionCache = sessioncache.New(sessioncache.Config{
		TTL:           cfg.Auth.SessionCacheTTL,
		SweepInterval: cfg.Auth.SessionCacheSweepInterval,
		MaxSize:       cfg.Auth.SessionCacheMaxSize,
	}, d.Logger, sessioncache.WithMetrics(d.Metrics))

	d.Activity = activity.NewService(d.Repos.Activity, d.Logger, activity.DefaultConfig())

	sender := mail.NewLogSender(d.Logger, cfg.IsDevelopment())
	d.OTP = otp.NewService(d.Repos.OTPSessions, sender, d.Logger,
		otp.WithTTL(cfg.Auth.OTPTTL),
		otp.WithEmailLimit(cfg.Auth.OTPMaxPerEmail, cfg.Auth.OTPEmailWindow),
		otp.WithMetrics(d.Metrics))

	hasher := credentials.NewHasher(cfg.Auth.Argon2Memory, cfg.Auth.Argon2Iterations, cfg.Auth.Argon2Parallelism)
	d.Identity = identity.NewService(d.Repos.Users, d.Repos.AuthAccounts, d.TxManager, codec, hasher, d.Activity, d.Logger,
		identity.WithConfig(identity.Config{
			IdentityTTL: cfg.Auth.IdentityTTL,
			ExchangeTTL: cfg.Auth.OTPExchangeTTL,
		}),
		identity.WithMetrics(d.Metrics))

	d.Contexts = contexts.NewResolver(d.Repos.Users, d.Repos.Memberships, codec, d.Activity, d.Logger,
		contexts.WithTTL(cfg.Auth.ContextTTL),
		contexts.WithMetrics(d.Metrics))

	d.Institutions = legacy.NewInstitutionSessions(d.SessionCache, codec, d.Repos.Memberships, d.Logger)
	d.LegacyIssuer = legacy.NewIssuer(d.Identity, d.Repos.Memberships, codec, d.Activity, cfg.Auth.LegacyTTL, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.Gate = middleware.NewGate(d.Codec, d.Institutions, d.Logger, middleware.WithGateMetrics(d.Metrics))
	d.Throttle = middleware.NewThrottle(middleware.ThrottleConfig{
		RequestsPerMinute: cfg.Auth.OTPRequestsPerMinute,
		Burst:             cfg.Auth.OTPRequestBurst,
	}, d.Logger)

	cookies := handlers.CookieConfig{Secure: cfg.IsProduction()}
	d.AuthHandler = handlers.NewAuthHandler(d.Identity, d.OTP, d.Gate, d.Institutions, cookies, d.Logger)
	d.ContextHandler = handlers.NewContextHandler(d.Contexts, cookies, d.Logger)
	d.LegacyHandler = handlers.NewLegacyHandler(d.LegacyIssuer, cookies, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Identity, d.Activity, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.Logger, handlers.DatabaseProbe(d.DB.DB), handlers.Probe{
		Name: "activity",
		Check: func(context.Context) error {
			if !d.Activity.GetStats().Started {
				return errors.New("activity workers not running")
			}
			return nil
		},
	})

	if cfg.OAuth.GoogleEnabled() {
		d.OAuthHandler = auth.NewHandler(auth.GoogleConfig{
			ClientID:     cfg.OAuth.GoogleClientID,
			ClientSecret: cfg.OAuth.GoogleClientSecret,
			RedirectURL:  cfg.OAuth.GoogleRedirectURL,
			FrontendURL:  cfg.Frontend.URL,
			Secure:       cfg.IsProduction(),
		}, d.Identity, d.Logger)
		d.Logger.Info("google login enabled")
	} else {
		d.Logger.Warn("google oauth not configured, provider login disabled")
	}
}

func (d *Dependencies) start() error {
	if err := d.Activity.Start(); err != nil {
		return fmt.Errorf("activity service: %w", err)
	}
	if err := d.SessionCache.Start(); err != nil {
		return fmt.Errorf("session cache: %w", err)
	}

	d.janitorStop = make(chan struct{})
	d.janitorDone = make(chan struct{})
	go d.purgeOTPSessions()
	return nil
}

// purgeOTPSessions deletes long-expired OTP rows until Close
func (d *Dependencies) purgeOTPSessions() {
	defer close(d.janitorDone)

	ticker := time.NewTicker(otpPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := d.OTP.PurgeExpired(ctx, otpPurgeGrace); err != nil {
				d.Logger.Warn("otp purge failed", zap.Error(err))
			}
			cancel()
		case <-d.janitorStop:
			return
		}
	}
}

// stop halts the background workers started by start
func (d *Dependencies) stop(timeout time.Duration) error {
	var errs []error

	if d.janitorStop != nil {
		close(d.janitorStop)
		<-d.janitorDone
		d.janitorStop = nil
	}
	if d.Throttle != nil {
		d.Throttle.Stop()
	}
	if d.SessionCache != nil {
		d.SessionCache.Stop()
	}
	if d.Activity != nil {
		if err := d.Activity.Stop(timeout); err != nil && !errors.Is(err, activity.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop activity service: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close gracefully shuts down all dependencies. Later calls return the
// result of the first.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.close(ctx)
	})
	return d.closeErr
}

func (d *Dependencies) close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	timeout := defaultStopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	var errs []error
	if err := d.stop(timeout); err != nil {
		errs = append(errs, err)
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
