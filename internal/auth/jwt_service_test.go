package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	svc, err := NewJWTService(JWTConfig{
		Secret:         "unit-secret",
		Issuer:         "acesso",
		AccessTokenTTL: 30 * time.Minute,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:    "user-1",
		SessionID: "session-1",
		Name:      "Ana",
		Email:     "ana@example.com",
		Provider:  "password",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "session-1", claims.SessionID)
	require.Equal(t, "Ana", claims.Name)
	require.Equal(t, "ana@example.com", claims.Email)
	require.Equal(t, "password", claims.Provider)
	require.Equal(t, "acesso", claims.Issuer)
	require.True(t, claims.Profile.IsZero())
}

func TestValidateAccessTokenExpired(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	svc, err := NewJWTService(JWTConfig{
		Secret:         "unit-secret",
		AccessTokenTTL: time.Minute,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = svc.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestValidateAccessTokenRejectsForeignIssuer(t *testing.T) {
	issuerA, err := NewJWTService(JWTConfig{Secret: "unit-secret", Issuer: "a"})
	require.NoError(t, err)
	issuerB, err := NewJWTService(JWTConfig{Secret: "unit-secret", Issuer: "b"})
	require.NoError(t, err)

	token, err := issuerA.GenerateAccessToken(AccessTokenInput{UserID: "user-1"})
	require.NoError(t, err)

	_, err = issuerB.ValidateAccessToken(token)
	require.Error(t, err)
}

func TestGenerateAccessTokenCarriesProfileSnapshot(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "unit-secret"})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:   "user-1",
		Provider: "oidc",
		Profile: NewOIDCSnapshot(OIDCProfile{
			Subject:       "sub-1",
			Issuer:        "https://issuer.example.com",
			EmailVerified: true,
		}),
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, ProfileKindOIDC, claims.Profile.Kind)
	require.NotNil(t, claims.Profile.OIDC)
	require.Equal(t, "sub-1", claims.Profile.OIDC.Subject)
	require.True(t, claims.Profile.OIDC.EmailVerified)
}

func TestGenerateAccessTokenRejectsMalformedSnapshot(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "unit-secret"})
	require.NoError(t, err)

	_, err = svc.GenerateAccessToken(AccessTokenInput{
		UserID:  "user-1",
		Profile: ProfileSnapshot{Kind: ProfileKindGithub},
	})
	require.Error(t, err)
}
