package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fridgecam/internal/apperr"
	"github.com/vbonduro/fridgecam/internal/auth"
	"github.com/vbonduro/fridgecam/internal/domain"
	"github.com/vbonduro/fridgecam/internal/store"
)

func newUserService(t *testing.T) (*UserService, *auth.Tokens) {
	t.Helper()
	tokens := auth.NewTokens("test-secret", time.Hour)
	return NewUserService(store.NewUserStore(openTestDB(t)), tokens, discardLogger()), tokens
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	svc, tokens := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, " alice ", "p@ssword1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.IsStaff)
	assert.NotEqual(t, "p@ssword1", user.PasswordHash)

	token, got, err := svc.Login(ctx, "alice", "p@ssword1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.False(t, claims.IsStaff)
}

func TestUserService_StaffClaim(t *testing.T) {
	svc, tokens := newUserService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "admin", "longenough", true)
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, "admin", "longenough")
	require.NoError(t, err)
	claims, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.True(t, claims.IsStaff)
}

func TestUserService_RegisterValidation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "al", "p@ssword1")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.Register(ctx, "alice", "short")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = svc.Register(ctx, "alice", "p@ssword1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "p@ssword2")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUserService_LoginFailures(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "p@ssword1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong-password")
	assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))

	_, _, err = svc.Login(ctx, "bob", "p@ssword1")
	assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
}

func TestUserService_AuthenticateReadsCurrentRights(t *testing.T) {
	d := openTestDB(t)
	users := store.NewUserStore(d)
	svc := NewUserService(users, auth.NewTokens("test-secret", time.Hour), discardLogger())
	ctx := context.Background()

	admin, err := svc.CreateUser(ctx, "admin", "longenough", true)
	require.NoError(t, err)
	stale := &auth.Claims{UserID: admin.ID, IsStaff: true}

	got, err := svc.Authenticate(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, Actor{UserID: admin.ID, IsStaff: true}, got)

	require.NoError(t, d.Model(&domain.User{}).Where("id = ?", admin.ID).Update("is_staff", false).Error)
	got, err = svc.Authenticate(ctx, stale)
	require.NoError(t, err)
	assert.False(t, got.IsStaff)

	require.NoError(t, users.Delete(ctx, admin.ID))
	_, err = svc.Authenticate(ctx, stale)
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrInvalidToken))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
