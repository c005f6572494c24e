// Package echo provides an offline provider that repeats the prompt. It is
// useful for the console platform and for tests.
package echo

import (
	"context"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "echo"

// Provider echoes the prompt back.
type Provider struct {
	name string
}

// New creates an echo provider.
func New(name string) *Provider {
	if name == "" {
		name = ProviderType
	}
	return &Provider{name: name}
}

// Register adds the echo factory to r.
func Register(r *registry.Registry) error {
	return r.Register(registry.ProviderFactory{
		Type:        ProviderType,
		Description: "Offline provider that repeats the prompt",
		Create: func(cfg config.ProviderConfig) (ports.Provider, error) {
			return New(cfg.Name), nil
		},
	})
}

func (p *Provider) Name() string { return p.name }

// Chat returns the prompt unchanged. Token counts are whitespace word counts.
func (p *Provider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := 0
	for _, m := range req.History {
		prompt += len(strings.Fields(m.Content))
	}
	prompt += len(strings.Fields(req.Prompt))

	return &domain.ChatResponse{
		Text:             req.Prompt,
		Model:            ProviderType,
		PromptTokens:     prompt,
		CompletionTokens: len(strings.Fields(req.Prompt)),
	}, nil
}
