package app

import (
	"github.com/fhpereira/acesso/internal/auth"
	"github.com/fhpereira/acesso/internal/auth/providers"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = 48
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// StateCodec builds the codec that seals OAuth state payloads.
func (c AuthConfig) StateCodec() (*auth.StateCodec, error) {
	key, err := DecodeKey(c.State.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return auth.NewStateCodec(key, c.State.TTL, nil)
}

// ProviderConfig converts GitHub provider configuration into constructor parameters.
func (c GithubProviderConfig) ProviderConfig() providers.GithubConfig {
	return providers.GithubConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
	}
}

// ProviderConfig converts OIDC provider configuration into constructor parameters.
func (c OIDCProviderConfig) ProviderConfig() providers.OIDCConfig {
	return providers.OIDCConfig{
		Issuer:       c.Issuer,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
		DisplayName:  c.DisplayName,
	}
}
