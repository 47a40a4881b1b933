package providers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fhpereira/acesso/internal/models"
	"github.com/fhpereira/acesso/pkg/crypto"
)

var (
	// ErrMissingCredentials signals that email or password was absent from the
	// request. Callers reject these without a user-facing message.
	ErrMissingCredentials = errors.New("auth: missing credentials")
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike, so responses do not reveal which accounts exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	Clock func() time.Time
}

// AuthenticateInput contains the credentials and client metadata for a
// password login attempt.
type AuthenticateInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LocalProvider implements email/password authentication.
type LocalProvider struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewLocalProvider builds a provider backed by the user table.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:    db,
		clock: clock,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated
// user when successful. Accounts provisioned through OAuth or magic-link
// carry no password hash and fail verification the same way a wrong password
// does.
func (p *LocalProvider) Authenticate(input AuthenticateInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrMissingCredentials
	}

	var user models.User
	err := p.db.Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	if !user.HasPassword() || !crypto.VerifyPassword(user.PasswordHash, input.Password) {
		return nil, ErrInvalidCredentials
	}

	now := p.clock()
	lastIP := strings.TrimSpace(input.IPAddress)

	if err := p.db.Model(&user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": lastIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: update user: %w", err)
	}

	user.LastLoginAt = &now
	user.LastLoginIP = lastIP

	return &user, nil
}
