package models

import "time"

// LoginToken stores magic-link verification requests. Only a sha256 digest
// of the emailed token is persisted; the plaintext token exists solely in
// the sign-in URL. ConsumedAt enforces the single-use invariant.
type LoginToken struct {
	BaseModel

	// Email is the normalized identifier the link was sent to. The
	// account may not exist yet; it is created on first successful use.
	Email      string     `gorm:"not null;index" json:"email"`
	TokenHash  string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`
}
