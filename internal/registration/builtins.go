// Package registration wires the built-in stages, providers, platforms and
// plugins into their registries explicitly. Nothing registers itself through
// init side effects; cmd/nekobot and tests call these helpers.
package registration

import (
	"context"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline/stages"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform/console"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform/discord"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform/onebot"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/plugin"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/plugins/echo"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/registry"
)

// NewStageRegistry returns a registry holding the built-in stages, one stage
// per configured webhook and any extra stages.
func NewStageRegistry(hooks []config.WebhookConfig, extra map[string]pipeline.StageFactory) (*pipeline.Registry, error) {
	reg := pipeline.NewRegistry()
	if err := stages.RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	if err := pipeline.RegisterWebhooks(reg, hooks); err != nil {
		return nil, err
	}
	for name, factory := range extra {
		if err := reg.Register(name, factory); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// NewProviderRegistry returns the registry of built-in LLM providers.
func NewProviderRegistry() (*registry.Registry, error) {
	return provider.NewDefaultRegistry()
}

// RegisterPlatforms adds the built-in platform factories to m.
func RegisterPlatforms(m *platform.Manager) error {
	factories := []struct {
		typ     string
		factory platform.Factory
	}{
		{onebot.PlatformType, onebot.Factory},
		{discord.PlatformType, discord.Factory},
		{console.PlatformType, console.Factory},
	}
	for _, f := range factories {
		if err := m.RegisterFactory(f.typ, f.factory); err != nil {
			return err
		}
	}
	return nil
}

// RegisterPlugins loads the built-in plugins into m.
func RegisterPlugins(ctx context.Context, m *plugin.Manager, platforms ports.PlatformManager) error {
	return m.Register(ctx, echo.New(platforms))
}
