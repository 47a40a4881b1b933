package auth

import (
	"encoding/json"
	"fmt"
)

// Profile kinds stored in the snapshot tag.
const (
	ProfileKindNone   = ""
	ProfileKindGithub = "github"
	ProfileKindOIDC   = "oidc"
)

// GithubProfile carries the subset of the GitHub user payload retained
// after login.
type GithubProfile struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// OIDCProfile carries the identity-token claims retained after login.
type OIDCProfile struct {
	Subject       string `json:"sub"`
	Issuer        string `json:"iss"`
	Picture       string `json:"picture,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// ProfileSnapshot is the provider profile captured when a session is issued.
// Exactly one variant is populated, selected by Kind; password and magic-link
// logins carry an empty snapshot.
type ProfileSnapshot struct {
	Kind   string         `json:"kind,omitempty"`
	Github *GithubProfile `json:"github,omitempty"`
	OIDC   *OIDCProfile   `json:"oidc,omitempty"`
}

// NewGithubSnapshot wraps a GitHub profile in a tagged snapshot.
func NewGithubSnapshot(profile GithubProfile) ProfileSnapshot {
	return ProfileSnapshot{Kind: ProfileKindGithub, Github: &profile}
}

// NewOIDCSnapshot wraps an OIDC profile in a tagged snapshot.
func NewOIDCSnapshot(profile OIDCProfile) ProfileSnapshot {
	return ProfileSnapshot{Kind: ProfileKindOIDC, OIDC: &profile}
}

// IsZero reports whether the snapshot carries no provider profile.
func (p ProfileSnapshot) IsZero() bool {
	return p.Kind == ProfileKindNone && p.Github == nil && p.OIDC == nil
}

// Validate checks that the populated variant matches the tag.
func (p ProfileSnapshot) Validate() error {
	switch p.Kind {
	case ProfileKindNone:
		if p.Github != nil || p.OIDC != nil {
			return fmt.Errorf("profile: untagged snapshot carries a variant")
		}
	case ProfileKindGithub:
		if p.Github == nil {
			return fmt.Errorf("profile: kind %q without github variant", p.Kind)
		}
		if p.OIDC != nil {
			return fmt.Errorf("profile: kind %q carries extra variant", p.Kind)
		}
	case ProfileKindOIDC:
		if p.OIDC == nil {
			return fmt.Errorf("profile: kind %q without oidc variant", p.Kind)
		}
		if p.Github != nil {
			return fmt.Errorf("profile: kind %q carries extra variant", p.Kind)
		}
	default:
		return fmt.Errorf("profile: unknown kind %q", p.Kind)
	}
	return nil
}

// DecodeProfileSnapshot parses a stored snapshot. Empty input yields the
// zero snapshot.
func DecodeProfileSnapshot(data []byte) (ProfileSnapshot, error) {
	var snapshot ProfileSnapshot
	if len(data) == 0 {
		return snapshot, nil
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return ProfileSnapshot{}, fmt.Errorf("profile: decode snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return ProfileSnapshot{}, err
	}
	return snapshot, nil
}
