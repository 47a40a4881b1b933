package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User describes a registered account. PasswordHash is empty for accounts
// provisioned through OAuth or magic-link login; those users authenticate
// exclusively through their provider.
type User struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	// PasswordHash is never serialised and never logged.
	PasswordHash string `gorm:"column:password_hash" json:"-"`

	// Provider records the mechanism that created the account
	// (password, github, oidc, magic_link). Subject is the provider's
	// stable identifier for the user, empty for password accounts.
	Provider        string         `gorm:"default:password" json:"provider"`
	ProviderSubject string         `gorm:"index" json:"-"`
	Profile         datatypes.JSON `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
