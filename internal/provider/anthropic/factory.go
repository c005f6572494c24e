package anthropic

import (
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "anthropic"

// DefaultModel is used when neither the config nor the request names a model.
const DefaultModel = "claude-3-5-haiku-latest"

// Register adds the Anthropic factory to r.
func Register(r *registry.Registry) error {
	return r.Register(registry.ProviderFactory{
		Type:           ProviderType,
		Description:    "Anthropic API provider (Claude models)",
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

// CreateFromConfig creates a new Anthropic provider from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (ports.Provider, error) {
	var opts []ProviderOption
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, WithModel(cfg.Model))
	}
	if cfg.Name != "" {
		opts = append(opts, WithName(cfg.Name))
	}
	return New(cfg.APIKey, opts...), nil
}

// ValidateConfig validates the provider configuration.
func ValidateConfig(cfg config.ProviderConfig) error {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return domain.ErrInvalidRequest("anthropic provider requires api_key")
	}
	return nil
}
