package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user := NewUser("  Ada Lovelace ", " Ada@Example.COM ")

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, []Context{ContextExplorer}, user.UnlockedContexts)
	assert.Equal(t, ContextExplorer, user.ActiveContext)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, "users", user.TableName())
}

func TestUser_Unlock(t *testing.T) {
	user := NewUser("a", "a@x.com")

	assert.True(t, user.Unlock(ContextMentor))
	assert.False(t, user.Unlock(ContextMentor))
	assert.True(t, user.HasContext(ContextMentor))
	assert.ElementsMatch(t, []Context{ContextExplorer, ContextMentor}, user.UnlockedContexts)
}

func TestUser_EnsureExplorer(t *testing.T) {
	user := &User{UnlockedContexts: []Context{ContextMentor}}
	user.EnsureExplorer()

	assert.Equal(t, []Context{ContextExplorer, ContextMentor}, user.UnlockedContexts)
}

func TestUser_IsAdmin(t *testing.T) {
	l2 := AdminLevelL2
	bogus := AdminLevel("L9")

	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"admin with level", &User{UnlockedContexts: []Context{ContextExplorer, ContextAdmin}, AdminLevel: &l2}, true},
		{"admin context without level", &User{UnlockedContexts: []Context{ContextAdmin}}, false},
		{"level without admin context", &User{UnlockedContexts: []Context{ContextExplorer}, AdminLevel: &l2}, false},
		{"unknown level", &User{UnlockedContexts: []Context{ContextAdmin}, AdminLevel: &bogus}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.IsAdmin())
		})
	}
}

func TestParseContext(t *testing.T) {
	for _, c := range AllContexts {
		got, err := ParseContext(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseContext(" Mentor ")
	require.NoError(t, err)
	assert.Equal(t, ContextMentor, got)

	_, err = ParseContext("investor")
	assert.Error(t, err)
	_, err = ParseContext("")
	assert.Error(t, err)
}

func TestContext_RequiresEntity(t *testing.T) {
	assert.True(t, ContextStartup.RequiresEntity())
	assert.True(t, ContextInstitute.RequiresEntity())
	assert.False(t, ContextExplorer.RequiresEntity())
	assert.False(t, ContextMentor.RequiresEntity())
	assert.False(t, ContextAdmin.RequiresEntity())
}

func TestAdminLevel_AtLeast(t *testing.T) {
	tests := []struct {
		level AdminLevel
		min   AdminLevel
		want  bool
	}{
		{AdminLevelL1, AdminLevelL2, false},
		{AdminLevelL2, AdminLevelL2, true},
		{AdminLevelL3, AdminLevelL2, true},
		{AdminLevelL3, AdminLevelL1, true},
		{"", AdminLevelL1, false},
		{"L4", AdminLevelL1, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level)+">="+string(tt.min), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.AtLeast(tt.min))
		})
	}
}

func TestLegacyRole(t *testing.T) {
	role, err := ParseLegacyRole("Mentor")
	require.NoError(t, err)
	assert.Equal(t, LegacyRoleMentor, role)
	assert.Equal(t, "mentor_token", role.TokenKey())

	_, err = ParseLegacyRole("admin")
	assert.Error(t, err)

	c, ok := LegacyRoleFounder.Context()
	assert.True(t, ok)
	assert.Equal(t, ContextStartup, c)

	c, ok = LegacyRoleInstitution.Context()
	assert.True(t, ok)
	assert.Equal(t, ContextInstitute, c)

	_, ok = LegacyRoleInvestor.Context()
	assert.False(t, ok)

	assert.Equal(t, []LegacyRole{LegacyRoleFounder, LegacyRoleMentor, LegacyRoleInstitution, LegacyRoleInvestor}, LegacyRoles)
}

func TestNewOTPSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewOTPSession("B@X.com", "123456", OTPPurposeLogin, now, 10*time.Minute)

	assert.Equal(t, "b@x.com", s.Email)
	assert.Equal(t, now.Add(10*time.Minute), s.ExpiresAt)
	assert.False(t, s.Verified)
	assert.False(t, s.IsExpired(now.Add(9*time.Minute)))
	assert.True(t, s.IsExpired(now.Add(10*time.Minute)))
	assert.Equal(t, "otp_sessions", s.TableName())
}

func TestOTPSession_CodeNotSerialized(t *testing.T) {
	s := NewOTPSession("b@x.com", "123456", OTPPurposeLogin, time.Now(), time.Minute)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "123456")
}

func TestParseOTPPurpose(t *testing.T) {
	p, err := ParseOTPPurpose("")
	require.NoError(t, err)
	assert.Equal(t, OTPPurposeLogin, p)

	p, err = ParseOTPPurpose("signup")
	require.NoError(t, err)
	assert.Equal(t, OTPPurposeSignup, p)

	_, err = ParseOTPPurpose("reset")
	assert.Error(t, err)
}

func TestNewCredentialsAccount(t *testing.T) {
	userID := uuid.New()
	acc := NewCredentialsAccount(userID, "Ada@Example.com", "$argon2id$...")

	assert.Equal(t, ProviderCredentials, acc.Provider)
	assert.Equal(t, "ada@example.com", acc.ProviderAccountID)
	require.NotNil(t, acc.PasswordHash)

	data, err := json.Marshal(acc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "argon2id")
}

func TestActivityLog_Builders(t *testing.T) {
	userID := uuid.New()
	entityID := uuid.New()

	log := NewActivityLog(userID, ActivityContextSwitch).
		WithTransition(ContextExplorer, ContextStartup).
		WithEntity(&entityID).
		WithDetails(map[string]string{"source": "switch"}).
		WithRequest("req-1")

	require.NotNil(t, log.FromContext)
	require.NotNil(t, log.ToContext)
	assert.Equal(t, ContextExplorer, *log.FromContext)
	assert.Equal(t, ContextStartup, *log.ToContext)
	assert.Equal(t, &entityID, log.EntityID)
	assert.JSONEq(t, `{"source":"switch"}`, string(log.Details))
	assert.Equal(t, "req-1", log.RequestID)

	empty := NewActivityLog(userID, ActivityLogin).WithTransition("", ContextMentor)
	assert.Nil(t, empty.FromContext)
}
