package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/storeauth/internal/common"
	"github.com/dmitrijs2005/storeauth/internal/logging"
	"github.com/dmitrijs2005/storeauth/internal/server/auth"
	"github.com/dmitrijs2005/storeauth/internal/server/config"
	"github.com/dmitrijs2005/storeauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserService_RejectsUnusableBcryptCost(t *testing.T) {
	db, _ := newSQLMockDB(t)
	cfg := testConfig()
	cfg.BcryptCost = 40

	us, err := NewUserService(db, newFakeRepoManager(nil, nil), nil, nil, cfg, logging.Nop{})
	require.Error(t, err)
	assert.Nil(t, us)
	assert.Contains(t, err.Error(), "dummy password")
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	u, err := f.users.Register(context.Background(), RegisterInput{Email: " Alice@Example.com ", Name: "Alice", Password: "Secret@123"})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.NotEqual(t, "Secret@123", u.PasswordHash)
	assert.NoError(t, auth.ComparePassword(u.PasswordHash, "Secret@123"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	u := newFakeUsersRepo(&models.User{ID: "u9", Email: "alice@example.com"})
	f := newFixture(t, testConfig(), u, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.users.Register(context.Background(), RegisterInput{Email: "ALICE@example.com", Name: "Alice", Password: "Secret@123"})
	assert.ErrorIs(t, err, common.ErrEmailAlreadyExists)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegister_UniqueIndexRace(t *testing.T) {
	u := newFakeUsersRepo()
	u.createErr = common.ErrorAlreadyExists
	f := newFixture(t, testConfig(), u, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.users.Register(context.Background(), RegisterInput{Email: "bob@example.com", Name: "Bob", Password: "Secret@123"})
	assert.ErrorIs(t, err, common.ErrEmailAlreadyExists)
}

func TestRegister_StoreError(t *testing.T) {
	u := newFakeUsersRepo()
	u.getErr = errBoom
	f := newFixture(t, testConfig(), u, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.users.Register(context.Background(), RegisterInput{Email: "bob@example.com", Name: "Bob", Password: "Secret@123"})
	assert.ErrorIs(t, err, errBoom)
}

func TestCreateAdmin(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	u, err := f.users.CreateAdmin(context.Background(), RegisterInput{Email: "root@example.com", Name: "Root", Password: "Secret@123"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
}

func TestAuthenticate(t *testing.T) {
	u := newFakeUsersRepo(&models.User{ID: "u1", Email: "alice@example.com", PasswordHash: mustHash(t, "Secret@123")})
	f := newFixture(t, testConfig(), u, nil)
	ctx := context.Background()

	got, err := f.users.Authenticate(ctx, "Alice@Example.com", "Secret@123")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = f.users.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.users.Authenticate(ctx, "ghost@example.com", "Secret@123")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	u.getErr = errBoom
	_, err = f.users.Authenticate(ctx, "alice@example.com", "Secret@123")
	assert.ErrorIs(t, err, errBoom)
	assert.NotErrorIs(t, err, common.ErrorUnauthorized)
}

func TestLogin(t *testing.T) {
	u := newFakeUsersRepo(&models.User{ID: "u1", Email: "alice@example.com", PasswordHash: mustHash(t, "Secret@123")})
	f := newFixture(t, testConfig(), u, nil)

	user, pair, err := f.users.Login(context.Background(), "alice@example.com", "Secret@123", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	res := f.signer.Verify(pair.AccessToken, auth.VerifyOptions{})
	require.True(t, res.Valid)
	sub, _ := auth.StringClaim(res.Claims, "sub")
	assert.Equal(t, "u1", sub)

	stored, err := f.rm.r.Find(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", stored.Origin)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), stored.Expires, time.Second)
}

func TestLogin_WrongPasswordIssuesNothing(t *testing.T) {
	u := newFakeUsersRepo(&models.User{ID: "u1", Email: "alice@example.com", PasswordHash: mustHash(t, "Secret@123")})
	f := newFixture(t, testConfig(), u, nil)

	_, pair, err := f.users.Login(context.Background(), "alice@example.com", "nope", "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Nil(t, pair)
	assert.Empty(t, f.rm.r.tokensOf("u1"))
}

func refreshFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	u := newFakeUsersRepo(&models.User{ID: "u1", Email: "alice@example.com"})
	f := newFixture(t, cfg, u, nil)
	f.rm.r.byToken["old"] = &models.RefreshToken{UserID: "u1", Token: "old", Origin: "10.0.0.1", Expires: f.now.Add(time.Hour), CreatedAt: f.now.Add(-time.Hour)}
	f.rm.r.byToken["other"] = &models.RefreshToken{UserID: "u1", Token: "other", Origin: "10.0.0.5", Expires: f.now.Add(time.Hour), CreatedAt: f.now.Add(-2 * time.Hour)}
	return f
}

func TestRefresh_KeepsOldTokenWithoutRotation(t *testing.T) {
	f := refreshFixture(t, testConfig())

	pair, err := f.users.Refresh(context.Background(), "old", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	assert.ElementsMatch(t, []string{"old", "other", pair.RefreshToken}, f.rm.r.tokensOf("u1"))
}

func TestRefresh_Rotation(t *testing.T) {
	cfg := testConfig()
	cfg.RotateRefreshTokens = true
	f := refreshFixture(t, cfg)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	pair, err := f.users.Refresh(context.Background(), "old", "10.0.0.1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"other", pair.RefreshToken}, f.rm.r.tokensOf("u1"))
	assert.NoError(t, f.mock.ExpectationsWereMet())

	_, err = f.users.Refresh(context.Background(), "old", "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrRefreshTokenInvalid)
}

func TestRefresh_RotationRejectsConcurrentReplay(t *testing.T) {
	cfg := testConfig()
	cfg.RotateRefreshTokens = true
	f := refreshFixture(t, cfg)

	// Another request consumes "old" between validation and rotation.
	f.rm.r.afterFind = func(token string) {
		f.rm.r.afterFind = nil
		_, _ = f.rm.r.Delete(context.Background(), token)
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	pair, err := f.users.Refresh(context.Background(), "old", "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrRefreshTokenInvalid)
	assert.Nil(t, pair)
	assert.ElementsMatch(t, []string{"other"}, f.rm.r.tokensOf("u1"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefresh_RotationDeleteFails(t *testing.T) {
	cfg := testConfig()
	cfg.RotateRefreshTokens = true
	f := refreshFixture(t, cfg)
	f.rm.r.deleteErr = errBoom
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.users.Refresh(context.Background(), "old", "10.0.0.1")
	assert.ErrorIs(t, err, errBoom)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefresh_OriginMismatchRevokesEverything(t *testing.T) {
	f := refreshFixture(t, testConfig())

	_, err := f.users.Refresh(context.Background(), "old", "203.0.113.9")
	assert.ErrorIs(t, err, common.ErrOriginMismatch)
	assert.Empty(t, f.rm.r.tokensOf("u1"))
}

func TestRefresh_OriginBindingDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.BindRefreshOrigin = false
	f := refreshFixture(t, cfg)

	pair, err := f.users.Refresh(context.Background(), "old", "203.0.113.9")
	require.NoError(t, err)

	stored, err := f.rm.r.Find(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", stored.Origin)
}

func TestRefresh_InvalidAndExpired(t *testing.T) {
	f := refreshFixture(t, testConfig())
	f.rm.r.byToken["stale"] = &models.RefreshToken{UserID: "u1", Token: "stale", Origin: "10.0.0.1", Expires: f.now}

	_, err := f.users.Refresh(context.Background(), "never-issued", "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrRefreshTokenInvalid)

	_, err = f.users.Refresh(context.Background(), "stale", "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
	assert.NotContains(t, f.rm.r.tokensOf("u1"), "stale")
}

func logoutFixture(t *testing.T, policy string) *fixture {
	t.Helper()
	cfg := testConfig()
	cfg.LogoutPolicy = policy
	f := newFixture(t, cfg, newFakeUsersRepo(&models.User{ID: "u1"}, &models.User{ID: "u2"}), nil)
	f.rm.r.byToken["expired"] = &models.RefreshToken{UserID: "u1", Token: "expired", Expires: f.now.Add(-time.Minute)}
	f.rm.r.byToken["live"] = &models.RefreshToken{UserID: "u1", Token: "live", Expires: f.now.Add(time.Hour)}
	f.rm.r.byToken["live2"] = &models.RefreshToken{UserID: "u1", Token: "live2", Expires: f.now.Add(time.Hour)}
	f.rm.r.byToken["foreign"] = &models.RefreshToken{UserID: "u2", Token: "foreign", Expires: f.now.Add(time.Hour)}
	return f
}

func TestLogout_Policies(t *testing.T) {
	tests := []struct {
		policy    string
		presented string
		want      []string
	}{
		{policy: config.LogoutExpired, presented: "live", want: []string{"live", "live2"}},
		{policy: config.LogoutPresented, presented: "live", want: []string{"live2"}},
		{policy: config.LogoutPresented, presented: "", want: []string{"live", "live2"}},
		{policy: config.LogoutPresented, presented: "foreign", want: []string{"live", "live2"}},
		{policy: config.LogoutAll, presented: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.policy+"/"+tt.presented, func(t *testing.T) {
			f := logoutFixture(t, tt.policy)

			require.NoError(t, f.users.Logout(context.Background(), "u1", tt.presented))
			assert.Equal(t, tt.want, f.rm.r.tokensOf("u1"))
			assert.Equal(t, []string{"foreign"}, f.rm.r.tokensOf("u2"))

			// second logout finds nothing to do and still succeeds
			require.NoError(t, f.users.Logout(context.Background(), "u1", tt.presented))
		})
	}
}

func TestLogout_StoreError(t *testing.T) {
	f := logoutFixture(t, config.LogoutExpired)
	f.rm.r.deleteErr = errBoom

	assert.ErrorIs(t, f.users.Logout(context.Background(), "u1", ""), errBoom)
}

func TestChangePassword(t *testing.T) {
	u := newFakeUsersRepo(&models.User{ID: "u1", Email: "alice@example.com", PasswordHash: mustHash(t, "Secret@123")})
	f := newFixture(t, testConfig(), u, nil)
	f.rm.r.byToken["live"] = &models.RefreshToken{UserID: "u1", Token: "live", Expires: f.now.Add(time.Hour)}
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	require.NoError(t, f.users.ChangePassword(context.Background(), "u1", "Secret@123", "N3w@password"))

	got, err := f.users.Authenticate(context.Background(), "alice@example.com", "N3w@password")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Empty(t, f.rm.r.tokensOf("u1"))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestChangePassword_Failures(t *testing.T) {
	u := newFakeUsersRepo(&models.User{ID: "u1", Email: "alice@example.com", PasswordHash: mustHash(t, "Secret@123")})
	f := newFixture(t, testConfig(), u, nil)

	err := f.users.ChangePassword(context.Background(), "u1", "wrong", "N3w@password")
	assert.ErrorIs(t, err, common.ErrInvalidCurrentPassword)

	err = f.users.ChangePassword(context.Background(), "ghost", "Secret@123", "N3w@password")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	u.updateErr = errBoom
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err = f.users.ChangePassword(context.Background(), "u1", "Secret@123", "N3w@password")
	assert.ErrorIs(t, err, errBoom)
}
