package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	meta Metadata
}

func (p *stubProvider) Metadata() Metadata { return p.meta }

func (p *stubProvider) Begin(ctx context.Context, req BeginAuthRequest) (*BeginAuthResponse, error) {
	return &BeginAuthResponse{State: req.State}, nil
}

func (p *stubProvider) Callback(ctx context.Context, req CallbackRequest) (*Identity, error) {
	return &Identity{Provider: p.meta.Type}, nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&stubProvider{meta: Metadata{Type: " GitHub ", DisplayName: "GitHub"}}))

	provider, err := registry.Lookup("github")
	require.NoError(t, err)
	require.Equal(t, " GitHub ", provider.Metadata().Type)

	_, err = registry.Lookup("saml")
	require.ErrorIs(t, err, ErrProviderUnknown)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&stubProvider{meta: Metadata{Type: "github"}}))
	err := registry.Register(&stubProvider{meta: Metadata{Type: "GITHUB"}})
	require.ErrorIs(t, err, ErrProviderExists)
}

func TestRegistryMetadataOrdering(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&stubProvider{meta: Metadata{Type: "oidc", DisplayName: "OpenID Connect", Order: 20}}))
	require.NoError(t, registry.Register(&stubProvider{meta: Metadata{Type: "github", DisplayName: "GitHub", Order: 10}}))

	items := registry.Metadata()
	require.Len(t, items, 2)
	require.Equal(t, "GitHub", items[0].DisplayName)
	require.Equal(t, "OpenID Connect", items[1].DisplayName)
}
