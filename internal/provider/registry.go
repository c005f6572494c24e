package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/registry"
)

// Resolver creates providers from configuration and caches them by name.
// A cached instance is rebuilt when its configuration changes.
type Resolver struct {
	factories *registry.Registry

	mu    sync.Mutex
	cache map[string]cachedProvider
}

type cachedProvider struct {
	cfg      config.ProviderConfig
	provider ports.Provider
}

// NewResolver creates a resolver over the given factories.
func NewResolver(factories *registry.Registry) *Resolver {
	return &Resolver{
		factories: factories,
		cache:     make(map[string]cachedProvider),
	}
}

// Resolve returns the provider for cfg, creating it on first use.
func (r *Resolver) Resolve(ctx context.Context, cfg config.ProviderConfig) (ports.Provider, error) {
	if cfg.Type == "" {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("provider %q has no type", cfg.Name))
	}
	key := cfg.Name
	if key == "" {
		key = cfg.Type
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[key]; ok && c.cfg == cfg {
		return c.provider, nil
	}

	p, err := r.factories.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", key, err)
	}
	r.cache[key] = cachedProvider{cfg: cfg, provider: p}
	return p, nil
}

// CreateProviders eagerly builds every enabled provider so configuration
// mistakes surface at startup.
func (r *Resolver) CreateProviders(ctx context.Context, configs []config.ProviderConfig) (map[string]ports.Provider, error) {
	providers := make(map[string]ports.Provider)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		p, err := r.Resolve(ctx, cfg)
		if err != nil {
			return nil, err
		}
		providers[cfg.Name] = p
	}
	return providers, nil
}

// Forget drops a cached provider.
func (r *Resolver) Forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, name)
}

var _ ports.ProviderResolver = (*Resolver)(nil)
