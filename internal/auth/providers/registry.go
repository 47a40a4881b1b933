package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrProviderExists is returned when attempting to register a provider type more than once.
	ErrProviderExists = errors.New("provider registry: provider already registered")
	// ErrProviderUnknown is returned when looking up a provider type that was never registered.
	ErrProviderUnknown = errors.New("provider registry: unknown provider")
)

// Registry maintains a catalogue of the redirect-based authentication
// providers enabled for this deployment, keyed by provider type.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry constructs an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry, enforcing uniqueness by provider type.
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return errors.New("provider registry: provider is nil")
	}

	providerType := strings.ToLower(strings.TrimSpace(provider.Metadata().Type))
	if providerType == "" {
		return errors.New("provider registry: metadata type is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[providerType]; exists {
		return fmt.Errorf("%w: %s", ErrProviderExists, providerType)
	}

	r.providers[providerType] = provider
	return nil
}

// Lookup retrieves the provider registered for the requested type.
func (r *Registry) Lookup(providerType string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(providerType))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnknown, providerType)
	}
	return provider, nil
}

// Metadata returns all registered provider metadata ordered by their
// configured order and display name.
func (r *Registry) Metadata() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Metadata, 0, len(r.providers))
	for _, provider := range r.providers {
		items = append(items, provider.Metadata())
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order == items[j].Order {
			return items[i].DisplayName < items[j].DisplayName
		}
		return items[i].Order < items[j].Order
	})

	return items
}
