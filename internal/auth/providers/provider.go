package providers

import (
	"context"
	"net/http"
)

// Metadata describes the static presentation details for an authentication provider.
type Metadata struct {
	Type        string
	DisplayName string
	ButtonText  string
	Order       int
}

// BeginAuthRequest captures contextual information required to begin an external auth flow.
type BeginAuthRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
	Prompt        string
}

// BeginAuthResponse contains the redirect information required to continue the external auth flow.
type BeginAuthResponse struct {
	RedirectURL string
	State       string
}

// CallbackRequest captures the raw HTTP details posted by an external provider.
type CallbackRequest struct {
	PKCEVerifier   string
	ExpectedNonce  string
	RawHTTPRequest *http.Request
}

// Identity represents the claims returned from an external authentication provider.
type Identity struct {
	Provider      string
	Subject       string
	Issuer        string
	Email         string
	EmailVerified bool
	Name          string
	Login         string
	AvatarURL     string
	ProfileURL    string
	RawClaims     map[string]any
}

// Provider defines the behaviour required for a redirect-based external
// authentication provider.
type Provider interface {
	Metadata() Metadata
	Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error)
	Callback(ctx context.Context, req CallbackRequest) (*Identity, error)
}
