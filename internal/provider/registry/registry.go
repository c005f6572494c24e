// Package registry provides provider factory registration and lookup.
//
// # Adding a New Provider
//
// Each provider package exposes an explicit registration function that the
// composition code calls; there are no init() side effects:
//
//	func Register(r *registry.Registry) error {
//	    return r.Register(registry.ProviderFactory{
//	        Type:           ProviderType,
//	        Description:    "Google Gemini API provider",
//	        Create:         CreateFromConfig,
//	        ValidateConfig: ValidateConfig,
//	    })
//	}
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// ProviderFactory defines how to create a provider of a specific type.
type ProviderFactory struct {
	// Type is the provider type identifier used in configuration
	// (e.g., "openai", "anthropic", "echo")
	Type string

	// Description provides a human-readable description of the provider
	Description string

	// Create instantiates a new provider from configuration.
	Create func(cfg config.ProviderConfig) (ports.Provider, error)

	// ValidateConfig performs provider-specific configuration validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(cfg config.ProviderConfig) error
}

// Registry holds provider factories keyed by type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Register adds a factory. Registering the same type twice is an error.
func (r *Registry) Register(f ProviderFactory) error {
	if f.Type == "" {
		return domain.ErrInvalidRequest("provider factory type cannot be empty")
	}
	if f.Create == nil {
		return domain.ErrInvalidRequest(fmt.Sprintf("provider factory %q must have a Create function", f.Type))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[f.Type]; exists {
		return domain.ErrInvalidRequest(fmt.Sprintf("provider factory %q already registered", f.Type))
	}
	r.factories[f.Type] = f
	return nil
}

// Get returns the factory for a provider type, if registered.
func (r *Registry) Get(providerType string) (ProviderFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[providerType]
	return f, ok
}

// IsRegistered returns true if a provider type is registered.
func (r *Registry) IsRegistered(providerType string) bool {
	_, ok := r.Get(providerType)
	return ok
}

// List returns all registered provider factories sorted by type.
func (r *Registry) List() []ProviderFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ProviderFactory, 0, len(r.factories))
	for _, f := range r.factories {
		result = append(result, f)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})
	return result
}

// Types returns all registered provider type names.
func (r *Registry) Types() []string {
	factories := r.List()
	types := make([]string, len(factories))
	for i, f := range factories {
		types[i] = f.Type
	}
	return types
}

// Create builds a provider using the registered factory for cfg.Type.
func (r *Registry) Create(cfg config.ProviderConfig) (ports.Provider, error) {
	f, ok := r.Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s (registered types: %v)", domain.ErrUnknownProvider, cfg.Type, r.Types())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for provider type %s: %w", cfg.Type, err)
		}
	}

	return f.Create(cfg)
}
