package contexts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/venture-hub/models"
	"github.com/upb/venture-hub/repositories"
	"github.com/upb/venture-hub/services"
	"github.com/upb/venture-hub/tokens"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name string) error {
	return m.Called(ctx, id, name).Error(0)
}

func (m *MockUserRepository) AddUnlockedContext(ctx context.Context, id uuid.UUID, c models.Context) (*models.User, bool, error) {
	args := m.Called(ctx, id, c)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *MockUserRepository) SetActiveContext(ctx context.Context, id uuid.UUID, c models.Context) error {
	return m.Called(ctx, id, c).Error(0)
}

func (m *MockUserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return m
}

// MockMembershipRepository is a mock implementation of MembershipRepository
type MockMembershipRepository struct {
	mock.Mock
}

func (m *MockMembershipRepository) GetStartupMembership(ctx context.Context, userID, startupID uuid.UUID) (*models.Membership, error) {
	args := m.Called(ctx, userID, startupID)
	if v := args.Get(0); v != nil {
		return v.(*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMembershipRepository) GetInstitutionMembership(ctx context.Context, userID, institutionID uuid.UUID) (*models.Membership, error) {
	args := m.Called(ctx, userID, institutionID)
	if v := args.Get(0); v != nil {
		return v.(*models.Membership), args.Error(1)
	}
	return nil, args.Error(1)
}

type recorderStub struct {
	logs []*models.ActivityLog
}

func (r *recorderStub) Record(log *models.ActivityLog) {
	r.logs = append(r.logs, log)
}

type fixture struct {
	resolver    *Resolver
	users       *MockUserRepository
	memberships *MockMembershipRepository
	recorder    *recorderStub
	codec       *tokens.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := tokens.NewCodec(testSecret, tokens.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	f := &fixture{
		users:       new(MockUserRepository),
		memberships: new(MockMembershipRepository),
		recorder:    &recorderStub{},
		codec:       codec,
	}
	f.resolver = NewResolver(f.users, f.memberships, codec, f.recorder, zap.NewNop())
	return f
}

func identityFor(user *models.User) *tokens.IdentityClaims {
	return &tokens.IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String()},
		Email:            user.Email,
		Contexts:         append([]models.Context(nil), user.UnlockedContexts...),
		Scope:            tokens.ScopeSession,
	}
}

func TestSwitch_MentorRequiresUnlock(t *testing.T) {
	f := newFixture(t)
	user := models.NewUser("Mia", "mia@x.com")

	_, err := f.resolver.Switch(context.Background(), identityFor(user), "mentor", "")
	assert.ErrorIs(t, err, services.ErrContextAccessDenied)
	f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)

	user.Unlock(models.ContextMentor)
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.users.On("SetActiveContext", mock.Anything, user.ID, models.ContextMentor).Return(nil)

	result, err := f.resolver.Switch(context.Background(), identityFor(user), "mentor", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.ExpiresAt.Equal(testNow.Add(DefaultTTL)))
	assert.Equal(t, models.ContextMentor, result.ContextInfo.Context)
	assert.Equal(t, "Mia", result.ContextInfo.Name)

	claims, err := f.codec.VerifyContext(result.Token)
	require.NoError(t, err)
	assert.Equal(t, models.ContextMentor, claims.Context)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Nil(t, claims.EntityID)

	require.Len(t, f.recorder.logs, 1)
	assert.Equal(t, models.ActivityContextSwitch, f.recorder.logs[0].Action)
	assert.Equal(t, models.ContextExplorer, *f.recorder.logs[0].FromContext)
	assert.Equal(t, models.ContextMentor, *f.recorder.logs[0].ToContext)
	f.users.AssertExpectations(t)
}

func TestSwitch_StartupWithoutEntityMakesNoLookup(t *testing.T) {
	f := newFixture(t)
	user := models.NewUser("Sam", "sam@x.com")
	user.Unlock(models.ContextStartup)

	for _, entityID := range []string{"", "   ", "not-a-uuid", uuid.Nil.String()} {
		_, err := f.resolver.Switch(context.Background(), identityFor(user), "startup", entityID)
		assert.ErrorIs(t, err, services.ErrEntityIDRequired)
	}

	f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	f.memberships.AssertNotCalled(t, "GetStartupMembership", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.recorder.logs)
}

func TestSwitch_StartupMembership(t *testing.T) {
	startupID := uuid.New()
	logo := "https://cdn.example.com/acme.png"

	tests := []struct {
		name       string
		membership *models.Membership
		repoErr    error
		wantErr    error
	}{
		{
			name:       "founder",
			membership: &models.Membership{EntityID: startupID, Role: "ceo", EntityName: "Acme", LogoURL: &logo},
		},
		{name: "not a founder", repoErr: repositories.ErrNotFound, wantErr: services.ErrEntityAccessDenied},
		{name: "lookup failure", repoErr: errors.New("timeout"), wantErr: services.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user := models.NewUser("Sam", "sam@x.com")
			user.Unlock(models.ContextStartup)
			f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
			f.users.On("SetActiveContext", mock.Anything, user.ID, models.ContextStartup).Return(nil).Maybe()
			if tt.membership != nil {
				tt.membership.UserID = user.ID
				f.memberships.On("GetStartupMembership", mock.Anything, user.ID, startupID).Return(tt.membership, nil)
			} else {
				f.memberships.On("GetStartupMembership", mock.Anything, user.ID, startupID).Return(nil, tt.repoErr)
			}

			result, err := f.resolver.Switch(context.Background(), identityFor(user), "startup", startupID.String())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, &models.EntitySummary{
				Context: models.ContextStartup,
				ID:      &startupID,
				Name:    "Acme",
				LogoURL: &logo,
				Role:    "ceo",
			}, result.ContextInfo)

			claims, err := f.codec.VerifyContext(result.Token)
			require.NoError(t, err)
			require.NotNil(t, claims.EntityID)
			assert.Equal(t, startupID, *claims.EntityID)
		})
	}
}

func TestSwitch_InstituteUsesInstitutionMembers(t *testing.T) {
	f := newFixture(t)
	institutionID := uuid.New()
	user := models.NewUser("Ivy", "ivy@x.com")
	user.Unlock(models.ContextInstitute)
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.users.On("SetActiveContext", mock.Anything, user.ID, models.ContextInstitute).Return(nil)
	f.memberships.On("GetInstitutionMembership", mock.Anything, user.ID, institutionID).
		Return(&models.Membership{UserID: user.ID, EntityID: institutionID, Role: "coordinator", EntityName: "UPB"}, nil)

	result, err := f.resolver.Switch(context.Background(), identityFor(user), "Institute", institutionID.String())
	require.NoError(t, err)
	assert.Equal(t, "UPB", result.ContextInfo.Name)
	f.memberships.AssertNotCalled(t, "GetStartupMembership", mock.Anything, mock.Anything, mock.Anything)
}

func TestSwitch_Rejections(t *testing.T) {
	t.Run("unknown context", func(t *testing.T) {
		f := newFixture(t)
		user := models.NewUser("A", "a@x.com")

		_, err := f.resolver.Switch(context.Background(), identityFor(user), "investor", "")
		assert.ErrorIs(t, err, services.ErrInvalidContext)
	})

	t.Run("revoked since token issue", func(t *testing.T) {
		f := newFixture(t)
		user := models.NewUser("A", "a@x.com")
		user.Unlock(models.ContextMentor)
		claims := identityFor(user)

		current := *user
		current.UnlockedContexts = []models.Context{models.ContextExplorer}
		f.users.On("GetByID", mock.Anything, user.ID).Return(&current, nil)

		_, err := f.resolver.Switch(context.Background(), claims, "mentor", "")
		assert.ErrorIs(t, err, services.ErrContextAccessDenied)
	})

	t.Run("deleted user", func(t *testing.T) {
		f := newFixture(t)
		user := models.NewUser("A", "a@x.com")
		f.users.On("GetByID", mock.Anything, user.ID).Return(nil, repositories.ErrNotFound)

		_, err := f.resolver.Switch(context.Background(), identityFor(user), "explorer", "")
		assert.ErrorIs(t, err, services.ErrUnauthenticated)
	})

	t.Run("exchange token cannot switch", func(t *testing.T) {
		f := newFixture(t)
		claims := identityFor(models.NewUser("A", "a@x.com"))
		claims.Scope = tokens.ScopeOTPExchange

		_, err := f.resolver.Switch(context.Background(), claims, "explorer", "")
		assert.ErrorIs(t, err, services.ErrUnauthenticated)
	})
}

func TestSwitch_ActiveContextFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	user := models.NewUser("A", "a@x.com")
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.users.On("SetActiveContext", mock.Anything, user.ID, models.ContextExplorer).Return(errors.New("read only"))

	result, err := f.resolver.Switch(context.Background(), identityFor(user), "explorer", "")
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestSwitch_AdminSummaryCarriesLevel(t *testing.T) {
	f := newFixture(t)
	level := models.AdminLevelL3
	user := models.NewUser("Root", "root@x.com")
	user.Unlock(models.ContextAdmin)
	user.AdminLevel = &level
	f.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	f.users.On("SetActiveContext", mock.Anything, user.ID, models.ContextAdmin).Return(nil)

	result, err := f.resolver.Switch(context.Background(), identityFor(user), "admin", "")
	require.NoError(t, err)
	assert.Equal(t, "L3", result.ContextInfo.Role)
}
