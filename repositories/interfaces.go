package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/venture-hub/models"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint is violated
	ErrDuplicate = errors.New("duplicate record")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// UserRepository handles the global user identity
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail matches case-insensitively
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, name string) error

	// AddUnlockedContext appends c to the unlocked set in one statement and
	// returns the stored user. The bool is false when c was already held.
	AddUnlockedContext(ctx context.Context, id uuid.UUID, c models.Context) (*models.User, bool, error)

	// SetActiveContext stores the last context the user switched into. Display hint only.
	SetActiveContext(ctx context.Context, id uuid.UUID, c models.Context) error

	WithTx(tx Transaction) UserRepository
}

// AuthAccountRepository handles login method bindings
type AuthAccountRepository interface {
	Create(ctx context.Context, account *models.AuthAccount) error

	GetByProviderAccount(ctx context.Context, provider models.Provider, providerAccountID string) (*models.AuthAccount, error)

	GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider models.Provider) (*models.AuthAccount, error)

	WithTx(tx Transaction) AuthAccountRepository
}

// OTPSessionRepository handles one-time passcode sessions
type OTPSessionRepository interface {
	Create(ctx context.Context, session *models.OTPSession) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.OTPSession, error)

	// Consume atomically flips verified to true when id and code match, the
	// session is unverified and not expired at now. The bool reports whether
	// this call performed the transition.
	Consume(ctx context.Context, id uuid.UUID, code string, now time.Time) (*models.OTPSession, bool, error)

	// DeleteExpired removes sessions that expired before the cutoff
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)

	// CountSince counts sessions created for email at or after since
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
}

// MembershipRepository answers entity eligibility questions
type MembershipRepository interface {
	// GetStartupMembership returns the founder relation between user and startup
	GetStartupMembership(ctx context.Context, userID, startupID uuid.UUID) (*models.Membership, error)

	// GetInstitutionMembership returns the member relation between user and institution
	GetInstitutionMembership(ctx context.Context, userID, institutionID uuid.UUID) (*models.Membership, error)
}

// ActivityRepository stores account activity events
type ActivityRepository interface {
	Insert(ctx context.Context, log *models.ActivityLog) error

	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.ActivityLog, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Users        UserRepository
	AuthAccounts AuthAccountRepository
	OTPSessions  OTPSessionRepository
	Memberships  MembershipRepository
	Activity     ActivityRepository
}
