// Package ports defines the core interfaces for the bot.
// This file contains the pipeline stage contract and the shared context stages receive.
package ports

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// PostFunc is the post-phase of a suspended stage. It runs after every later
// stage has finished or the event was stopped.
type PostFunc func(ctx context.Context) error

// Outcome is what a stage returns from Process: Complete or Suspend.
type Outcome struct {
	suspend bool
	post    PostFunc
}

// Complete means the stage is done and the scheduler moves to the next stage.
func Complete() Outcome {
	return Outcome{}
}

// Suspend marks the stage's suspension point. The scheduler runs the remaining
// stages and then calls post, which may be nil.
func Suspend(post PostFunc) Outcome {
	return Outcome{suspend: true, post: post}
}

// Suspended reports whether the outcome is a suspension point.
func (o Outcome) Suspended() bool { return o.suspend }

// Post returns the post-phase continuation, or nil.
func (o Outcome) Post() PostFunc { return o.post }

// Stage is one step of the event pipeline. Stages are singletons shared by
// every event and keep no per-event state.
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string
	// Initialize runs once before the first event.
	Initialize(ctx context.Context, pctx *PipelineContext) error
	// Process executes the stage logic for one event.
	Process(ctx context.Context, pctx *PipelineContext, ev *domain.Event) (Outcome, error)
}

// ConfigSource hands out configuration snapshots. Callers own the returned value.
type ConfigSource interface {
	Current() *config.Config
}

// StaticConfig is a ConfigSource over a fixed configuration.
type StaticConfig struct {
	Config *config.Config
}

// Current returns a copy of the fixed configuration.
func (s StaticConfig) Current() *config.Config {
	if s.Config == nil {
		return &config.Config{}
	}
	return s.Config.Clone()
}

// PipelineContext carries the collaborators shared by all stages. It is built
// once by the runtime; stages only read it, apart from the derived cache.
type PipelineContext struct {
	Config    ConfigSource
	Platforms PlatformManager
	Plugins   PluginManager
	Providers ProviderResolver
	Contexts  ContextStore
	Tasks     TaskSpawner
	ACL       ACL
	Limiter   QualityPolicy
	Logger    *slog.Logger

	cache sync.Map
}

// Snapshot returns the current configuration, never nil.
func (p *PipelineContext) Snapshot() *config.Config {
	if p == nil || p.Config == nil {
		return &config.Config{}
	}
	if cfg := p.Config.Current(); cfg != nil {
		return cfg
	}
	return &config.Config{}
}

// Log returns the configured logger or the default one.
func (p *PipelineContext) Log() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// CacheLoad reads a value a stage derived and stored earlier.
func (p *PipelineContext) CacheLoad(key string) (any, bool) {
	return p.cache.Load(key)
}

// CacheStore records a derived value, e.g. a compiled matcher.
func (p *PipelineContext) CacheStore(key string, value any) {
	p.cache.Store(key, value)
}

// PipelineExecutor runs events through the stage chain.
type PipelineExecutor interface {
	Execute(ctx context.Context, ev *domain.Event)
}
