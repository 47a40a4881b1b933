package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/fhpereira/acesso/pkg/errors"

	"github.com/fhpereira/acesso/internal/models"
	"github.com/fhpereira/acesso/pkg/crypto"
	"github.com/fhpereira/acesso/pkg/metrics"
	"github.com/fhpereira/acesso/pkg/mail"
)

const (
	defaultLoginTokenExpiry = 24 * time.Hour
	defaultLoginTokenBytes  = 32
)

var (
	// ErrLoginTokenNotFound indicates the token does not exist.
	ErrLoginTokenNotFound = errors.New("magic link: token not found")
	// ErrLoginTokenExpired indicates the token has outlived its window.
	ErrLoginTokenExpired = errors.New("magic link: token expired")
	// ErrLoginTokenUsed signals that the token has already been consumed.
	ErrLoginTokenUsed = errors.New("magic link: token already used")
	// ErrIdentifierRequired is returned when no usable email remains after
	// normalisation.
	ErrIdentifierRequired = errors.New("magic link: identifier is required")
)

// MagicLinkOption customises the MagicLinkService.
type MagicLinkOption func(*MagicLinkService)

// WithMagicLinkBaseURL sets the base URL used in sign-in links.
func WithMagicLinkBaseURL(base string) MagicLinkOption {
	return func(s *MagicLinkService) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithMagicLinkExpiry overrides the token lifetime.
func WithMagicLinkExpiry(d time.Duration) MagicLinkOption {
	return func(s *MagicLinkService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithMagicLinkTokenSize adjusts the number of random bytes in generated tokens.
func WithMagicLinkTokenSize(size int) MagicLinkOption {
	return func(s *MagicLinkService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithMagicLinkClock injects a custom time source.
func WithMagicLinkClock(clock func() time.Time) MagicLinkOption {
	return func(s *MagicLinkService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MagicLinkService issues and consumes single-use email sign-in tokens.
// Tokens are stored hashed; the plaintext only ever travels inside the
// emailed link.
type MagicLinkService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
}

// NewMagicLinkService constructs a magic-link service with the provided dependencies.
func NewMagicLinkService(db *gorm.DB, mailer mail.Mailer, opts ...MagicLinkOption) (*MagicLinkService, error) {
	if db == nil {
		return nil, errors.New("magic link service: db is required")
	}

	service := &MagicLinkService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultLoginTokenExpiry,
		tokenLength: defaultLoginTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// NormalizeIdentifier canonicalises a sign-in identifier: lowercase, trimmed,
// and with address-list noise stripped from the domain part
// ("User@Example.com,Extra" becomes "user@example.com"). The local part may
// legitimately contain a comma, so only the domain is cut.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	parts := strings.Split(identifier, "@")
	if len(parts) < 2 {
		return identifier
	}
	domain, _, _ := strings.Cut(parts[1], ",")
	return parts[0] + "@" + domain
}

// Request issues a login token for the identifier and dispatches the sign-in
// email. A previous unconsumed token for the same address is discarded, so at
// most one link per address is live.
func (s *MagicLinkService) Request(ctx context.Context, identifier string) error {
	email := NormalizeIdentifier(identifier)
	if email == "" {
		return ErrIdentifierRequired
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return fmt.Errorf("magic link service: generate token: %w", err)
	}

	now := s.now()
	record := models.LoginToken{
		Email:     email,
		TokenHash: loginTokenHash(token),
		ExpiresAt: now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).
		Where("email = ? AND consumed_at IS NULL", email).
		Delete(&models.LoginToken{}).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("magic link service: cleanup existing: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("magic link service: create token: %w", err)
	}

	link := s.signInLink(token, email)

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Seu link de acesso",
			Text:    s.textBody(link),
			HTML:    s.htmlBody(link),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			metrics.MagicLinkEmails.WithLabelValues("failed").Inc()
			return apperrors.ErrDelivery.WithInternal(mailErr)
		}
	}

	metrics.MagicLinkEmails.WithLabelValues("sent").Inc()
	return nil
}

// Consume validates a login token and returns the account it signs in,
// creating the account on first use. The token is spent atomically: a
// concurrent consume of the same token loses the update race and fails.
func (s *MagicLinkService) Consume(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrLoginTokenNotFound
	}

	var record models.LoginToken
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", loginTokenHash(token)).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoginTokenNotFound
		}
		return nil, fmt.Errorf("magic link service: find token: %w", err)
	}

	now := s.now()
	if record.ExpiresAt.Before(now) {
		return nil, ErrLoginTokenExpired
	}
	if record.ConsumedAt != nil {
		return nil, ErrLoginTokenUsed
	}

	result := s.db.WithContext(ctx).
		Model(&models.LoginToken{}).
		Where("id = ? AND consumed_at IS NULL", record.ID).
		Update("consumed_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("magic link service: mark consumed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrLoginTokenUsed
	}

	return s.findOrCreateUser(ctx, record.Email)
}

func (s *MagicLinkService) findOrCreateUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("magic link service: find user: %w", err)
	}

	created := &models.User{
		Name:     strings.Split(email, "@")[0],
		Email:    email,
		Provider: "magic_link",
	}
	if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
		if isUniqueConstraintError(err) {
			if lookupErr := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error; lookupErr == nil {
				return &user, nil
			}
		}
		return nil, fmt.Errorf("magic link service: create user: %w", err)
	}

	return created, nil
}

func (s *MagicLinkService) signInLink(token, email string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s&email=%s", s.baseURL, url.QueryEscape(token), url.QueryEscape(email))
}

func (s *MagicLinkService) textBody(link string) string {
	return fmt.Sprintf("Acesse sua conta\n\nUse o link abaixo para entrar:\n%s\n\nSe você não solicitou este email, pode ignorá-lo.\n", link)
}

func (s *MagicLinkService) htmlBody(link string) string {
	return fmt.Sprintf(`<body style="background:#f9f9f9;font-family:Helvetica,Arial,sans-serif;">
<table width="100%%" border="0" cellspacing="20" cellpadding="0" style="background:#fff;max-width:600px;margin:auto;border-radius:10px;">
<tr><td align="center" style="padding:10px 0;font-size:22px;color:#444;">Acesse sua conta</td></tr>
<tr><td align="center" style="padding:20px 0;">
<a href="%s" target="_blank" style="font-size:18px;color:#fff;text-decoration:none;border-radius:5px;padding:10px 20px;background:#346df1;display:inline-block;font-weight:bold;">Entrar</a>
</td></tr>
<tr><td align="center" style="padding:0 0 10px;font-size:16px;color:#444;">Se você não solicitou este email, pode ignorá-lo.</td></tr>
</table>
</body>`, link)
}

func loginTokenHash(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
