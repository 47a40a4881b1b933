package services

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fhpereira/acesso/internal/database/testutil"
	"github.com/fhpereira/acesso/internal/models"
	apperrors "github.com/fhpereira/acesso/pkg/errors"
	"github.com/fhpereira/acesso/pkg/mail"
)

type captureMailer struct {
	messages []mail.Message
	err      error
}

func (m *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func TestNormalizeIdentifier(t *testing.T) {
	cases := map[string]string{
		" User@Example.com ":      "user@example.com",
		"User@Example.com,Extra":  "user@example.com",
		"user@a,b":                "user@a",
		"ANA@EXAMPLE.COM":         "ana@example.com",
		"user@example.com, x, y ": "user@example.com",
		"jo,ao@example.com":       "jo,ao@example.com",
		"Jo,Ao@Example.com,Bcc":   "jo,ao@example.com",
		"no-at-sign":              "no-at-sign",
		"":                        "",
	}

	for input, want := range cases {
		require.Equal(t, want, NormalizeIdentifier(input), "input %q", input)
	}
}

func TestRequestIssuesSingleUseToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc := newMagicLinkServiceForTest(t, db, mailer)

	require.NoError(t, svc.Request(context.Background(), "Ana@Example.com,noise"))

	require.Len(t, mailer.messages, 1)
	msg := mailer.messages[0]
	require.Equal(t, []string{"ana@example.com"}, msg.To)
	require.NotEmpty(t, msg.Text)
	require.Contains(t, msg.HTML, "Entrar")

	token := extractToken(t, msg.Text)
	require.NotEmpty(t, token)

	var record models.LoginToken
	require.NoError(t, db.Take(&record, "email = ?", "ana@example.com").Error)
	require.NotEqual(t, token, record.TokenHash)
	require.Equal(t, loginTokenHash(token), record.TokenHash)
	require.Nil(t, record.ConsumedAt)
}

func TestRequestReplacesPendingToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc := newMagicLinkServiceForTest(t, db, mailer)

	require.NoError(t, svc.Request(context.Background(), "ana@example.com"))
	require.NoError(t, svc.Request(context.Background(), "ana@example.com"))

	var count int64
	require.NoError(t, db.Model(&models.LoginToken{}).Where("email = ?", "ana@example.com").Count(&count).Error)
	require.EqualValues(t, 1, count)

	// The first link no longer works.
	firstToken := extractToken(t, mailer.messages[0].Text)
	_, err := svc.Consume(context.Background(), firstToken)
	require.ErrorIs(t, err, ErrLoginTokenNotFound)
}

func TestRequestSurfacesDeliveryFailure(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{err: &mail.DeliveryError{StatusCode: 403, Body: `{"errors":[{"message":"forbidden"}]}`}}
	svc := newMagicLinkServiceForTest(t, db, mailer)

	err := svc.Request(context.Background(), "ana@example.com")
	require.ErrorIs(t, err, apperrors.ErrDelivery)

	var deliveryErr *mail.DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	require.Equal(t, 403, deliveryErr.StatusCode)
	require.Contains(t, deliveryErr.Body, "forbidden")
}

func TestConsumeCreatesUserOnFirstLogin(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc := newMagicLinkServiceForTest(t, db, mailer)

	require.NoError(t, svc.Request(context.Background(), "ana@example.com"))
	token := extractToken(t, mailer.messages[0].Text)

	user, err := svc.Consume(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", user.Email)
	require.Equal(t, "ana", user.Name)
	require.Equal(t, "magic_link", user.Provider)
	require.False(t, user.HasPassword())

	// Single use: the same token cannot sign in twice.
	_, err = svc.Consume(context.Background(), token)
	require.ErrorIs(t, err, ErrLoginTokenUsed)
}

func TestConsumeReturnsExistingUser(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}
	svc := newMagicLinkServiceForTest(t, db, mailer)

	existing := &models.User{Name: "Ana", Email: "ana@example.com", Provider: "password"}
	require.NoError(t, db.Create(existing).Error)

	require.NoError(t, svc.Request(context.Background(), "ana@example.com"))
	token := extractToken(t, mailer.messages[0].Text)

	user, err := svc.Consume(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, existing.ID, user.ID)
	require.Equal(t, "password", user.Provider)
}

func TestConsumeEnforcesExpiry(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}

	current := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	svc, err := NewMagicLinkService(db, mailer,
		WithMagicLinkBaseURL("https://app.example.com/api/auth/magic-link/callback"),
		WithMagicLinkExpiry(time.Hour),
		WithMagicLinkClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	require.NoError(t, svc.Request(context.Background(), "ana@example.com"))
	token := extractToken(t, mailer.messages[0].Text)

	current = current.Add(2 * time.Hour)

	_, err = svc.Consume(context.Background(), token)
	require.ErrorIs(t, err, ErrLoginTokenExpired)
}

func TestConsumeUnknownToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	svc := newMagicLinkServiceForTest(t, db, &captureMailer{})

	_, err := svc.Consume(context.Background(), "never-issued")
	require.ErrorIs(t, err, ErrLoginTokenNotFound)

	_, err = svc.Consume(context.Background(), "")
	require.ErrorIs(t, err, ErrLoginTokenNotFound)
}

func newMagicLinkServiceForTest(t *testing.T, db *gorm.DB, mailer mail.Mailer) *MagicLinkService {
	t.Helper()

	svc, err := NewMagicLinkService(db, mailer,
		WithMagicLinkBaseURL("https://app.example.com/api/auth/magic-link/callback"),
	)
	require.NoError(t, err)
	return svc
}

func extractToken(t *testing.T, body string) string {
	t.Helper()

	for _, field := range strings.Fields(body) {
		if !strings.Contains(field, "?token=") {
			continue
		}
		parsed, err := url.Parse(field)
		require.NoError(t, err)
		return parsed.Query().Get("token")
	}
	t.Fatal("no sign-in link found in body")
	return ""
}
