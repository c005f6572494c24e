// Package provider contains the provider factory registry and resolver for
// LLM backends.
//
// # Adding a New Provider
//
// Implement ports.Provider in its own package and expose an explicit
// registration function that calls registry.Register. Wire that registration
// from internal/registration (or tests) so we avoid init() side effects.
package provider

import (
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/anthropic"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/echo"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/openai"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider/registry"
)

// NewDefaultRegistry returns a registry with every built-in provider type.
func NewDefaultRegistry() (*registry.Registry, error) {
	r := registry.New()
	for _, register := range []func(*registry.Registry) error{
		openai.Register,
		anthropic.Register,
		echo.Register,
	} {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}
