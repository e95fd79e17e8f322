package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return WrapDB(sqlDB, zap.NewNop()), mock
}

var userRowColumns = []string{"id", "name", "email", "phone", "avatar_url", "unlocked_contexts", "active_context", "admin_level", "created_at", "updated_at"}

func TestUserRepository_Create(t *testing.T) {
	t.Run("inserts normalized email and contexts", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		user := models.NewUser("Ada", "ada@example.com")

		mock.ExpectExec("INSERT INTO users").
			WithArgs(user.ID, "Ada", "ada@example.com", nil, nil, sqlmock.AnyArg(), "explorer", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to duplicate", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectExec("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505"})

		err := repo.Create(context.Background(), models.NewUser("Ada", "ada@example.com"))
		assert.True(t, errors.Is(err, repositories.ErrDuplicate))
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		id := uuid.New()
		now := time.Now().UTC()

		rows := sqlmock.NewRows(userRowColumns).
			AddRow(id.String(), "Ada", "ada@example.com", nil, nil, "{mentor,bogus}", "mentor", "L2", now, now)
		mock.ExpectQuery(`FROM users WHERE lower\(email\) = \$1`).
			WithArgs("ada@example.com").
			WillReturnRows(rows)

		user, err := repo.GetByEmail(context.Background(), " ADA@example.com ")
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
		assert.Equal(t, []models.Context{models.ContextExplorer, models.ContextMentor}, user.UnlockedContexts)
		assert.Equal(t, models.ContextMentor, user.ActiveContext)
		require.NotNil(t, user.AdminLevel)
		assert.Equal(t, models.AdminLevelL2, *user.AdminLevel)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM users").
			WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, err := repo.GetByEmail(context.Background(), "missing@example.com")
		assert.True(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestUserRepository_AddUnlockedContext(t *testing.T) {
	const unlockQuery = `UPDATE users SET unlocked_contexts = array_append\(unlocked_contexts, \$2::text\), updated_at = \$3 WHERE id = \$1 AND NOT \(\$2::text = ANY\(unlocked_contexts\)\) RETURNING`

	t.Run("appends in a single statement", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		id := uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery(unlockQuery).
			WithArgs(id, "mentor", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), "Ada", "ada@example.com", nil, nil, "{explorer,mentor}", "explorer", nil, now, now))

		user, changed, err := repo.AddUnlockedContext(context.Background(), id, models.ContextMentor)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, []models.Context{models.ContextExplorer, models.ContextMentor}, user.UnlockedContexts)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already held leaves the row alone", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())
		id := uuid.New()
		now := time.Now().UTC()

		mock.ExpectQuery(unlockQuery).
			WithArgs(id, "mentor", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(userRowColumns))
		mock.ExpectQuery(`FROM users WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(userRowColumns).
				AddRow(id.String(), "Ada", "ada@example.com", nil, nil, "{explorer,mentor}", "mentor", nil, now, now))

		user, changed, err := repo.AddUnlockedContext(context.Background(), id, models.ContextMentor)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.True(t, user.HasContext(models.ContextMentor))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db, zap.NewNop())

		mock.ExpectQuery(unlockQuery).WillReturnRows(sqlmock.NewRows(userRowColumns))
		mock.ExpectQuery("FROM users WHERE id").WillReturnRows(sqlmock.NewRows(userRowColumns))

		_, changed, err := repo.AddUnlockedContext(context.Background(), uuid.New(), models.ContextStartup)
		assert.False(t, changed)
		assert.True(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestUserRepository_WithTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, zap.NewNop())
	tm := NewTransactionManager(db, zap.NewNop())
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET name").
		WithArgs(id, "Grace", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		return repo.WithTx(tx).UpdateProfile(ctx, id, "Grace")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		return boom
	})
	assert.Equal(t, boom, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_ContextCarriesTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop(), WithIsolation(sql.LevelReadCommitted))
	repo := NewOTPSessionRepository(db, zap.NewNop())
	since := time.Now().Add(-15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM otp_sessions").
		WithArgs("ada@example.com", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectCommit()

	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		// nested call joins the outer transaction
		return tm.InTransaction(ctx, func(ctx context.Context, inner repositories.Transaction) error {
			assert.Same(t, tx, inner)
			n, err := repo.CountSince(ctx, "ada@example.com", since)
			assert.Equal(t, 2, n)
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_RollbackAfterCommit(t *testing.T) {
	db, mock := newMockDB(t)
	tm := NewTransactionManager(db, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := tm.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthAccountRepository_GetByProviderAccount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthAccountRepository(db, zap.NewNop())
	id, userID := uuid.New(), uuid.New()

	rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "provider_account_id", "password_hash", "created_at"}).
		AddRow(id.String(), userID.String(), "credentials", "ada@example.com", "$argon2id$hash", time.Now())
	mock.ExpectQuery("FROM auth_accounts WHERE provider = \\$1 AND provider_account_id = \\$2").
		WithArgs("credentials", "ada@example.com").
		WillReturnRows(rows)

	acc, err := repo.GetByProviderAccount(context.Background(), models.ProviderCredentials, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, userID, acc.UserID)
	require.NotNil(t, acc.PasswordHash)
	assert.Equal(t, "$argon2id$hash", *acc.PasswordHash)
}

var otpRowColumns = []string{"id", "email", "otp", "purpose", "entity_id", "expires_at", "verified", "verified_at", "created_at"}

func TestOTPSessionRepository_Consume(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("transition performed", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOTPSessionRepository(db, zap.NewNop())
		id := uuid.New()

		rows := sqlmock.NewRows(otpRowColumns).
			AddRow(id.String(), "a@x.com", "123456", "login", nil, now.Add(5*time.Minute), true, now, now.Add(-5*time.Minute))
		mock.ExpectQuery(`UPDATE otp_sessions\s+SET verified = true, verified_at = \$3\s+WHERE id = \$1 AND otp = \$2 AND verified = false AND expires_at > \$3`).
			WithArgs(id, "123456", now).
			WillReturnRows(rows)

		session, consumed, err := repo.Consume(context.Background(), id, "123456", now)
		require.NoError(t, err)
		assert.True(t, consumed)
		assert.True(t, session.Verified)
		assert.Equal(t, models.OTPPurposeLogin, session.Purpose)
	})

	t.Run("no matching row", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOTPSessionRepository(db, zap.NewNop())

		mock.ExpectQuery("UPDATE otp_sessions").
			WillReturnRows(sqlmock.NewRows(otpRowColumns))

		session, consumed, err := repo.Consume(context.Background(), uuid.New(), "000000", now)
		require.NoError(t, err)
		assert.False(t, consumed)
		assert.Nil(t, session)
	})

	t.Run("database error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOTPSessionRepository(db, zap.NewNop())

		mock.ExpectQuery("UPDATE otp_sessions").WillReturnError(errors.New("conn reset"))

		_, consumed, err := repo.Consume(context.Background(), uuid.New(), "000000", now)
		assert.Error(t, err)
		assert.False(t, consumed)
	})
}

func TestOTPSessionRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOTPSessionRepository(db, zap.NewNop())
	cutoff := time.Now().UTC()

	mock.ExpectExec("DELETE FROM otp_sessions WHERE expires_at < \\$1").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestOTPSessionRepository_CountSince(t *testing.T) {
	t.Run("counts the window", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOTPSessionRepository(db, zap.NewNop())
		since := time.Now().UTC().Add(-15 * time.Minute)

		mock.ExpectQuery("SELECT COUNT\\(\\*\\)\\s+FROM otp_sessions").
			WithArgs("a@x.com", since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

		n, err := repo.CountSince(context.Background(), "a@x.com", since)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewOTPSessionRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM otp_sessions").WillReturnError(errors.New("connection reset"))

		_, err := repo.CountSince(context.Background(), "a@x.com", time.Now())
		assert.Error(t, err)
	})
}

func TestMembershipRepository(t *testing.T) {
	columns := []string{"user_id", "entity_id", "role", "application_id", "name", "logo_url"}

	t.Run("startup founder", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMembershipRepository(db, zap.NewNop())
		userID, startupID := uuid.New(), uuid.New()

		mock.ExpectQuery("FROM startup_founders sf").
			WithArgs(userID, startupID).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(userID.String(), startupID.String(), "founder", nil, "Acme", nil))

		m, err := repo.GetStartupMembership(context.Background(), userID, startupID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", m.EntityName)
		assert.Nil(t, m.ApplicationID)

		summary := m.Summary(models.ContextStartup)
		assert.Equal(t, &startupID, summary.ID)
		assert.Equal(t, "founder", summary.Role)
	})

	t.Run("institution member with application", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMembershipRepository(db, zap.NewNop())
		userID, instID, appID := uuid.New(), uuid.New(), uuid.New()

		mock.ExpectQuery("FROM institution_members im").
			WithArgs(userID, instID).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(userID.String(), instID.String(), "member", appID.String(), "Uni", "https://logo"))

		m, err := repo.GetInstitutionMembership(context.Background(), userID, instID)
		require.NoError(t, err)
		require.NotNil(t, m.ApplicationID)
		assert.Equal(t, appID, *m.ApplicationID)
		require.NotNil(t, m.LogoURL)
	})

	t.Run("no relation", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewMembershipRepository(db, zap.NewNop())

		mock.ExpectQuery("FROM startup_founders").WillReturnRows(sqlmock.NewRows(columns))

		_, err := repo.GetStartupMembership(context.Background(), uuid.New(), uuid.New())
		assert.True(t, errors.Is(err, repositories.ErrNotFound))
	})
}

func TestActivityRepository(t *testing.T) {
	t.Run("insert", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewActivityRepository(db, zap.NewNop())
		log := models.NewActivityLog(uuid.New(), models.ActivityContextSwitch).
			WithTransition(models.ContextExplorer, models.ContextMentor)

		mock.ExpectExec("INSERT INTO activity_logs").
			WithArgs(log.ID, log.UserID, "context_switch", "explorer", "mentor", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Insert(context.Background(), log))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewActivityRepository(db, zap.NewNop())
		userID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "user_id", "action", "from_context", "to_context", "entity_id", "details", "request_id", "created_at"}).
			AddRow(uuid.NewString(), userID.String(), "login", nil, "explorer", nil, []byte(`{"provider":"email_otp"}`), "req-9", time.Now()).
			AddRow(uuid.NewString(), userID.String(), "signup", nil, nil, nil, nil, nil, time.Now())
		mock.ExpectQuery("FROM activity_logs").
			WithArgs(userID, 20, 0).
			WillReturnRows(rows)

		logs, err := repo.ListByUser(context.Background(), userID, 20, 0)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, models.ActivityLogin, logs[0].Action)
		require.NotNil(t, logs[0].ToContext)
		assert.Equal(t, models.ContextExplorer, *logs[0].ToContext)
		assert.Equal(t, "req-9", logs[0].RequestID)
		assert.Nil(t, logs[1].FromContext)
		assert.Empty(t, logs[1].RequestID)
	})
}
