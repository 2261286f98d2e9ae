package user

import (
	"context"
	"testing"
	"time"

	"mixflow/core/apperr"
	"mixflow/core/auth"
	"mixflow/db/dbtest"
	"mixflow/model"
	"mixflow/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) (*Service, *auth.Issuer) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	return NewService(repository.NewGormUserRepository(dbtest.Open(t)), issuer, bcrypt.MinCost), issuer
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, issuer := newService(t)

	u, token, err := svc.Register(ctx, RegisterInput{Email: "Sam@Example.com", Username: "sam", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", u.Email)
	assert.Equal(t, model.UserTypeListener, u.UserType)
	assert.True(t, u.IsActive)

	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)

	_, _, err = svc.Register(ctx, RegisterInput{Email: "sam@example.com", Username: "other", Password: "password1"})
	assert.Equal(t, apperr.CodeUserExists, apperr.CodeOf(err))

	logged, token, err := svc.Login(ctx, LoginInput{Email: "SAM@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(ctx, LoginInput{Email: "sam@example.com", Password: "wrong-password"})
	assert.Equal(t, apperr.CodeInvalidCredentials, apperr.CodeOf(err))
	_, _, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password1"})
	assert.Equal(t, apperr.CodeInvalidCredentials, apperr.CodeOf(err))
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	for _, in := range []RegisterInput{
		{Email: "bad", Username: "sam", Password: "password1"},
		{Email: "a@b.c", Username: "s", Password: "password1"},
		{Email: "a@b.c", Username: "sam", Password: "short"},
		{Email: "a@b.c", Username: "sam", Password: "password1", UserType: "ADMIN"},
	} {
		_, _, err := svc.Register(context.Background(), in)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), "%+v", in)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a, _, err := svc.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alpha", Password: "password1"})
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, RegisterInput{Email: "b@example.com", Username: "beta", Password: "password1"})
	require.NoError(t, err)

	taken := "beta"
	_, err = svc.UpdateProfile(ctx, a.ID, UpdateInput{Username: &taken})
	assert.Equal(t, apperr.CodeUsernameTaken, apperr.CodeOf(err))

	name, first := "alpha_2", "Al"
	u, err := svc.UpdateProfile(ctx, a.ID, UpdateInput{Username: &name, FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "alpha_2", u.Username)
	require.NotNil(t, u.FirstName)
	assert.Equal(t, "Al", *u.FirstName)

	_, err = svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}
