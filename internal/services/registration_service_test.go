package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fhpereira/acesso/internal/database/testutil"
	"github.com/fhpereira/acesso/internal/models"
	"github.com/fhpereira/acesso/pkg/crypto"
	apperrors "github.com/fhpereira/acesso/pkg/errors"
)

func TestRegisterCreatesCredentialAccount(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	svc, err := NewRegistrationService(db)
	require.NoError(t, err)

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     " Ana Souza ",
		Email:    " Ana@Example.com ",
		Password: "correct horse",
	})
	require.NoError(t, err)
	require.Equal(t, "Ana Souza", user.Name)
	require.Equal(t, "ana@example.com", user.Email)
	require.Equal(t, "password", user.Provider)
	require.True(t, user.HasPassword())
	require.True(t, crypto.VerifyPassword(user.PasswordHash, "correct horse"))

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.NotEqual(t, "correct horse", stored.PasswordHash)
}

func TestRegisterRequiresAllFields(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	svc, err := NewRegistrationService(db)
	require.NoError(t, err)

	cases := []RegisterInput{
		{},
		{Name: "Ana"},
		{Name: "Ana", Email: "ana@example.com"},
		{Email: "ana@example.com", Password: "secret"},
	}

	for _, input := range cases {
		_, err := svc.Register(context.Background(), input)
		require.ErrorIs(t, err, apperrors.ErrValidation)
	}

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	svc, err := NewRegistrationService(db)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "first",
	})
	require.NoError(t, err)

	// Same address with different casing still collides.
	_, err = svc.Register(context.Background(), RegisterInput{
		Name:     "Ana Again",
		Email:    "Ana@Example.com",
		Password: "second",
	})
	require.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
