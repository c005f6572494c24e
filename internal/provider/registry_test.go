package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/registry"
)

func TestNewDefaultRegistry(t *testing.T) {
	reg, err := provider.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	want := []string{"anthropic", "echo", "openai"}
	if diff := cmp.Diff(want, reg.Types()); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_Resolve(t *testing.T) {
	reg, err := provider.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	resolver := provider.NewResolver(reg)

	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		wantErr bool
	}{
		{
			name: "openai",
			cfg:  config.ProviderConfig{Name: "gpt", Type: "openai", APIKey: "test-key"},
		},
		{
			name: "openai compatible",
			cfg:  config.ProviderConfig{Name: "local", Type: "openai", BaseURL: "http://localhost:8080/v1"},
		},
		{
			name: "anthropic",
			cfg:  config.ProviderConfig{Name: "claude", Type: "anthropic", APIKey: "test-key"},
		},
		{
			name:    "anthropic without key",
			cfg:     config.ProviderConfig{Name: "claude2", Type: "anthropic"},
			wantErr: true,
		},
		{
			name: "echo",
			cfg:  config.ProviderConfig{Name: "e", Type: "echo"},
		},
		{
			name:    "unknown",
			cfg:     config.ProviderConfig{Name: "x", Type: "unknown"},
			wantErr: true,
		},
		{
			name:    "no type",
			cfg:     config.ProviderConfig{Name: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := resolver.Resolve(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Name() != tt.cfg.Name {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.cfg.Name)
			}
		})
	}
}

func TestResolver_UnknownTypeIsNotFound(t *testing.T) {
	resolver := provider.NewResolver(registry.New())
	_, err := resolver.Resolve(context.Background(), config.ProviderConfig{Name: "x", Type: "gemini"})
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

type countingProvider struct{ name string }

func (c *countingProvider) Name() string { return c.name }

func (c *countingProvider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{Text: req.Prompt}, nil
}

func TestResolver_CachesByName(t *testing.T) {
	created := 0
	reg := registry.New()
	if err := reg.Register(registry.ProviderFactory{
		Type: "stub",
		Create: func(cfg config.ProviderConfig) (ports.Provider, error) {
			created++
			return &countingProvider{name: cfg.Name}, nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(registry.ProviderFactory{Type: "stub", Create: func(config.ProviderConfig) (ports.Provider, error) { return nil, nil }}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	resolver := provider.NewResolver(reg)
	cfg := config.ProviderConfig{Name: "a", Type: "stub", Model: "m1"}

	first, _ := resolver.Resolve(context.Background(), cfg)
	second, _ := resolver.Resolve(context.Background(), cfg)
	if first != second || created != 1 {
		t.Errorf("expected cached instance, created = %d", created)
	}

	cfg.Model = "m2"
	if _, err := resolver.Resolve(context.Background(), cfg); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if created != 2 {
		t.Errorf("expected rebuild after config change, created = %d", created)
	}

	resolver.Forget("a")
	if _, err := resolver.Resolve(context.Background(), cfg); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if created != 3 {
		t.Errorf("expected rebuild after Forget, created = %d", created)
	}
}

func TestResolver_CreateProviders(t *testing.T) {
	reg, _ := provider.NewDefaultRegistry()
	resolver := provider.NewResolver(reg)

	got, err := resolver.CreateProviders(context.Background(), []config.ProviderConfig{
		{Name: "e", Type: "echo", Enabled: true},
		{Name: "off", Type: "unknown"},
	})
	if err != nil {
		t.Fatalf("CreateProviders() error = %v", err)
	}
	if len(got) != 1 || got["e"] == nil {
		t.Errorf("unexpected providers: %v", got)
	}
}
