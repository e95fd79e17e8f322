package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/internal/observability"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/services/credentials"
	"github.com/upb/venture-hub/services/mail"
	"github.com/upb/venture-hub/utils"
	"go.uber.org/zap"
)

// DefaultTTL is how long a code stays valid
const DefaultTTL = 10 * time.Minute

// Outcome is the three-way result of a verification
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeAlreadyUsed      Outcome = "already_used"
	OutcomeInvalidOrExpired Outcome = "invalid_or_expired"
)

// Err maps a failed outcome to its domain error, nil on success
func (o Outcome) Err() error {
	switch o {
	case OutcomeSuccess:
		return nil
	case OutcomeAlreadyUsed:
		return services.ErrOTPAlreadyUsed
	}
	return services.ErrOTPInvalidOrExpired
}

// Service issues and consumes one-time passcode sessions
type Service struct {
	repo     repositories.OTPSessionRepository
	sender   mail.Sender
	logger   *zap.Logger
	metrics  observability.Metrics
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)

	// per-email cap over a sliding window, off when maxPerEmail is 0
	maxPerEmail int
	emailWindow time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithTTL sets the code lifetime
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGenerator overrides the code generator
func WithGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.generate = gen }
}

// WithEmailLimit caps the codes issued to one email within window
func WithEmailLimit(max int, window time.Duration) Option {
	return func(s *Service) {
		if max > 0 && window > 0 {
			s.maxPerEmail = max
			s.emailWindow = window
		}
	}
}

// WithMetrics reports request outcomes
func WithMetrics(m observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new otp service
func NewService(repo repositories.OTPSessionRepository, sender mail.Sender, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		sender:   sender,
		logger:   logger,
		metrics:  observability.NopMetrics{},
		ttl:      DefaultTTL,
		now:      time.Now,
		generate: credentials.GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession persists a fresh unverified session. Earlier unconsumed
// sessions for the same email stay valid until they expire.
func (s *Service) CreateSession(ctx context.Context, email string, purpose models.OTPPurpose, entityID *uuid.UUID) (*models.OTPSession, error) {
	email = models.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, services.ErrInvalidEmail
	}
	purpose, err := models.ParseOTPPurpose(string(purpose))
	if err != nil {
		return nil, services.ErrInvalidOTPPurpose
	}
	if err := s.checkEmailLimit(ctx, email); err != nil {
		return nil, err
	}

	code, err := s.generate()
	if err != nil {
		return nil, services.WrapInternal("failed to generate code", err)
	}

	session := models.NewOTPSession(email, code, purpose, s.now().UTC(), s.ttl)
	session.EntityID = entityID

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, services.WrapInternal("failed to store code", err)
	}

	return session, nil
}

func (s *Service) checkEmailLimit(ctx context.Context, email string) error {
	if s.maxPerEmail == 0 {
		return nil
	}
	count, err := s.repo.CountSince(ctx, email, s.now().UTC().Add(-s.emailWindow))
	if err != nil {
		return services.WrapInternal("failed to check code requests", err)
	}
	if count >= s.maxPerEmail {
		s.logger.Info("otp requests exceeded for email",
			zap.Int("count", count),
			zap.Duration("window", s.emailWindow))
		return services.ErrRateLimitExceeded.WithDetail("retry_after_seconds", int(s.emailWindow.Seconds()))
	}
	return nil
}

// RequestCode creates a session and emails the code. A delivery failure
// keeps the stored session and returns it with an email delivery error.
func (s *Service) RequestCode(ctx context.Context, email string, purpose models.OTPPurpose, entityID *uuid.UUID) (*models.OTPSession, error) {
	session, err := s.CreateSession(ctx, email, purpose, entityID)
	if err != nil {
		s.metrics.RecordOTPRequest(string(purpose), "rejected")
		return nil, err
	}

	if err := s.sender.Send(ctx, mail.OTPMessage(session.Email, session.Code, s.ttl)); err != nil {
		s.logger.Error("failed to send otp email",
			zap.String("session_id", session.ID.String()),
			zap.Error(err))
		s.metrics.RecordOTPRequest(string(purpose), "delivery_failed")
		return session, services.ErrEmailDelivery.Wrap(err)
	}

	s.metrics.RecordOTPRequest(string(purpose), "sent")
	s.logger.Info("otp session created",
		zap.String("session_id", session.ID.String()),
		zap.String("purpose", string(purpose)))
	return session, nil
}

// Verify consumes a session. The conditional update in the repository is
// the only concurrency guard: of two racing calls exactly one succeeds.
func (s *Service) Verify(ctx context.Context, sessionID uuid.UUID, code string) (*models.OTPSession, Outcome, error) {
	if sessionID == uuid.Nil || !credentials.ValidOTPFormat(code) {
		return nil, OutcomeInvalidOrExpired, nil
	}

	session, consumed, err := s.repo.Consume(ctx, sessionID, code, s.now().UTC())
	if err != nil {
		return nil, "", services.WrapInternal("failed to verify code", err)
	}
	if consumed {
		return session, OutcomeSuccess, nil
	}

	// Nothing was updated: classify why.
	existing, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, OutcomeInvalidOrExpired, nil
		}
		return nil, "", services.WrapInternal("failed to verify code", err)
	}
	if existing.Verified && subtle.ConstantTimeCompare([]byte(existing.Code), []byte(code)) == 1 {
		return nil, OutcomeAlreadyUsed, nil
	}
	return nil, OutcomeInvalidOrExpired, nil
}

// PurgeExpired deletes sessions that expired more than grace ago
func (s *Service) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("purge otp sessions: %w", err)
	}
	if n > 0 {
		s.logger.Debug("purged expired otp sessions", zap.Int64("count", n))
	}
	return n, nil
}

// TTL returns the configured code lifetime
func (s *Service) TTL() time.Duration {
	return s.ttl
}
