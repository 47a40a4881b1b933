package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fhpereira/acesso/internal/auth/providers"
	"github.com/fhpereira/acesso/internal/models"
)

var (
	// ErrLinkEmailRequired indicates the upstream identity did not supply an
	// email address and provisioning is not possible.
	ErrLinkEmailRequired = errors.New("account linker: email is required")
	// ErrLinkEmailUnverified rejects identities whose email the provider has
	// not verified; linking on an unverified address would let anyone claim
	// an existing account.
	ErrLinkEmailUnverified = errors.New("account linker: email not verified")
)

// LinkerConfig exposes tunable behaviour for the AccountLinker.
type LinkerConfig struct {
	Clock func() time.Time
}

// AccountLinker maps external provider identities onto local accounts and
// issues sessions for them. When an account already exists under the
// identity's verified email, the provider identity is attached to it, so a
// user who registered with a password can later sign in with GitHub using
// the same address.
type AccountLinker struct {
	db       *gorm.DB
	sessions *SessionService
	clock    func() time.Time
}

// NewAccountLinker constructs an AccountLinker.
func NewAccountLinker(db *gorm.DB, sessions *SessionService, cfg LinkerConfig) (*AccountLinker, error) {
	if db == nil {
		return nil, errors.New("account linker: db is required")
	}
	if sessions == nil {
		return nil, errors.New("account linker: session service is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &AccountLinker{
		db:       db,
		sessions: sessions,
		clock:    clock,
	}, nil
}

// Resolve maps an identity returned by an external provider to a local user
// and issues a session token pair.
func (l *AccountLinker) Resolve(ctx context.Context, identity providers.Identity, meta SessionMetadata) (TokenPair, *models.User, *models.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	user, err := l.LinkIdentity(ctx, identity)
	if err != nil {
		return TokenPair{}, nil, nil, err
	}

	snapshot := snapshotFor(identity)

	tokens, session, err := l.sessions.CreateSession(AuthSubject{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Provider: normalizeProvider(identity.Provider),
		Profile:  snapshot,
	}, meta)
	if err != nil {
		return TokenPair{}, nil, nil, fmt.Errorf("account linker: create session: %w", err)
	}

	now := l.clock()
	lastIP := strings.TrimSpace(meta.IPAddress)
	update := map[string]any{
		"last_login_at": now,
		"last_login_ip": lastIP,
	}
	if err := l.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(update).Error; err == nil {
		user.LastLoginAt = &now
		user.LastLoginIP = lastIP
	}

	return tokens, user, session, nil
}

// LinkIdentity associates an external identity with a user account,
// provisioning a new passwordless account when no user exists under the
// identity's email.
func (l *AccountLinker) LinkIdentity(ctx context.Context, identity providers.Identity) (*models.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return nil, ErrLinkEmailRequired
	}
	if !identity.EmailVerified {
		return nil, ErrLinkEmailUnverified
	}

	provider := normalizeProvider(identity.Provider)
	subject := strings.TrimSpace(identity.Subject)

	profile, err := encodeSnapshot(snapshotFor(identity))
	if err != nil {
		return nil, err
	}

	var user models.User
	err = l.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	switch {
	case err == nil:
		updates := map[string]any{}
		if user.Provider != provider {
			updates["provider"] = provider
		}
		if subject != "" && strings.TrimSpace(user.ProviderSubject) != subject {
			updates["provider_subject"] = subject
		}
		if name := strings.TrimSpace(identity.Name); name != "" && user.Name == "" {
			updates["name"] = name
		}
		if len(profile) > 0 {
			updates["profile"] = profile
		}

		if len(updates) > 0 {
			if err := l.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("account linker: update user: %w", err)
			}
			if err := l.db.WithContext(ctx).Take(&user, "id = ?", user.ID).Error; err != nil {
				return nil, fmt.Errorf("account linker: reload user: %w", err)
			}
		}

		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return l.provisionUser(ctx, identity, email, provider, subject, profile)
	default:
		return nil, fmt.Errorf("account linker: find user: %w", err)
	}
}

// provisionUser creates an account with no password hash. Such accounts
// authenticate exclusively through their provider until the user sets a
// password some other way.
func (l *AccountLinker) provisionUser(ctx context.Context, identity providers.Identity, email, provider, subject string, profile datatypes.JSON) (*models.User, error) {
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = strings.Split(email, "@")[0]
	}

	user := &models.User{
		Name:            name,
		Email:           email,
		Provider:        provider,
		ProviderSubject: subject,
		Profile:         profile,
	}

	if err := l.db.WithContext(ctx).Create(user).Error; err != nil {
		// A concurrent signup may have claimed the email between the lookup
		// and the insert; the unique index arbitrates, so retry the lookup.
		var existing models.User
		if lookupErr := l.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("account linker: create user: %w", err)
	}

	return user, nil
}

func snapshotFor(identity providers.Identity) ProfileSnapshot {
	switch normalizeProvider(identity.Provider) {
	case ProfileKindGithub:
		return NewGithubSnapshot(GithubProfile{
			Login:     identity.Login,
			AvatarURL: identity.AvatarURL,
			HTMLURL:   identity.ProfileURL,
		})
	case ProfileKindOIDC:
		return NewOIDCSnapshot(OIDCProfile{
			Subject:       identity.Subject,
			Issuer:        identity.Issuer,
			Picture:       identity.AvatarURL,
			EmailVerified: identity.EmailVerified,
		})
	default:
		return ProfileSnapshot{}
	}
}

func encodeSnapshot(snapshot ProfileSnapshot) (datatypes.JSON, error) {
	if snapshot.IsZero() {
		return nil, nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("account linker: encode profile: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func normalizeProvider(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
