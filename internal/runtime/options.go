package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/plugin"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/storage/memory"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/storage/sqlite"
)

// Option is a functional option for configuring a Bot.
type Option func(*Bot) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// The path should point to a config.yaml file that will be watched for changes.
func WithFileConfig(path string) Option {
	return func(b *Bot) error {
		provider, err := file.NewProvider(path, file.WithLogger(b.logger))
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		b.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration. Nothing is watched.
func WithConfig(cfg *config.Config) Option {
	return func(b *Bot) error {
		b.config = &staticProvider{StaticConfig: ports.StaticConfig{Config: cfg}}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(b *Bot) error {
		b.config = provider
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) error {
		b.logger = logger
		return nil
	}
}

// WithSQLite stores conversation history in SQLite, overriding storage.type.
func WithSQLite(path string) Option {
	return func(b *Bot) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		b.store = store
		return nil
	}
}

// WithMemoryStorage keeps conversation history in memory, overriding storage.type.
func WithMemoryStorage() Option {
	return func(b *Bot) error {
		b.store = memory.New()
		return nil
	}
}

// WithHistoryStore sets a custom history store.
func WithHistoryStore(store ports.HistoryStore) Option {
	return func(b *Bot) error {
		b.store = store
		return nil
	}
}

// WithQualityPolicy sets a custom rate limit policy.
func WithQualityPolicy(policy ports.QualityPolicy) Option {
	return func(b *Bot) error {
		b.policy = policy
		return nil
	}
}

// WithPlatform adds a ready-made platform adapter next to the configured ones.
func WithPlatform(p ports.Platform) Option {
	return func(b *Bot) error {
		b.extraPlatforms = append(b.extraPlatforms, p)
		return nil
	}
}

// WithPlatformFactory makes another platform type available to platforms[].
func WithPlatformFactory(platformType string, f platform.Factory) Option {
	return func(b *Bot) error {
		if b.platformFactories == nil {
			b.platformFactories = make(map[string]platform.Factory)
		}
		b.platformFactories[platformType] = f
		return nil
	}
}

// WithoutConfiguredPlatforms ignores platforms[] and runs only the adapters
// added with WithPlatform.
func WithoutConfiguredPlatforms() Option {
	return func(b *Bot) error {
		b.skipConfiguredPlatforms = true
		return nil
	}
}

// WithPlugin registers an additional plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(b *Bot) error {
		b.extraPlugins = append(b.extraPlugins, p)
		return nil
	}
}

// WithStage makes a custom stage available to pipeline.stages.
func WithStage(name string, factory pipeline.StageFactory) Option {
	return func(b *Bot) error {
		if b.extraStages == nil {
			b.extraStages = make(map[string]pipeline.StageFactory)
		}
		b.extraStages[name] = factory
		return nil
	}
}

// WithoutServer disables the HTTP server regardless of server.enabled.
func WithoutServer() Option {
	return func(b *Bot) error {
		b.disableServer = true
		return nil
	}
}

// staticProvider is a ConfigProvider over a fixed configuration.
type staticProvider struct {
	ports.StaticConfig
}

func (s *staticProvider) Load(ctx context.Context) (*config.Config, error) {
	return s.Current(), nil
}

func (s *staticProvider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	return nil
}

func (s *staticProvider) Close() error { return nil }
