package openai

import "github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"

func testConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Name:    "main",
		Type:    ProviderType,
		Enabled: true,
		Model:   "gpt-4o-mini",
		APIKey:  "test-key",
	}
}
