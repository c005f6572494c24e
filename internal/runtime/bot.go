// Package runtime assembles the bot: config, storage, platforms, plugins, the
// stage pipeline and the background services around them.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/acl"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/adapters/policy/ratelimit"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/bus"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/conversation"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/janitor"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/platform"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/plugin"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/provider"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/registration"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/server"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/storage/memory"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/storage/sqlite"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/tasks"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/tokens"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("bot already started")

// pruner is implemented by quality policies that keep per-key state.
type pruner interface {
	Prune(idle time.Duration) int
}

// Bot is a running NekoBot instance.
type Bot struct {
	config ports.ConfigProvider
	logger *slog.Logger
	store  ports.HistoryStore
	policy ports.QualityPolicy

	extraPlatforms          []ports.Platform
	platformFactories       map[string]platform.Factory
	skipConfiguredPlatforms bool
	extraPlugins            []plugin.Plugin
	extraStages             map[string]pipeline.StageFactory
	disableServer           bool

	platforms *platform.Manager
	plugins   *plugin.Manager
	providers *provider.Resolver
	contexts  *conversation.Manager
	tasks     *tasks.Set
	acl       *acl.Store
	bus       *bus.EventBus
	pctx      *ports.PipelineContext
	scheduler atomic.Pointer[pipeline.Scheduler]
	server    *server.Server
	janitor   *janitor.Janitor

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// New creates a bot. A config source is required.
func New(opts ...Option) (*Bot, error) {
	b := &Bot{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfig)")
	}
	return b, nil
}

// Start loads the configuration, builds every component and starts the
// platforms, the event loop and the background services. It does not block.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrAlreadyStarted
	}

	cfg, err := b.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := b.build(ctx, cfg); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true

	if err := b.config.Watch(runCtx, b.reload); err != nil {
		b.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return b.platforms.StartAll(gctx, b.bus) })
	g.Go(func() error {
		b.loop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		b.bus.Close()
		return nil
	})
	if b.server != nil {
		g.Go(func() error { return b.server.Start(gctx) })
	}
	if b.janitor != nil {
		g.Go(func() error { return b.janitor.Run(gctx) })
	}

	done := b.done
	go func() {
		err := g.Wait()
		b.mu.Lock()
		b.runErr = err
		b.mu.Unlock()
		close(done)
	}()

	b.logger.Info("nekobot started",
		slog.Any("stages", b.StageNames()),
		slog.Any("platforms", b.platforms.Names()),
	)
	return nil
}

// Done is closed once the event loop and services have stopped.
func (b *Bot) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Err reports why the bot stopped, if a service failed.
func (b *Bot) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runErr
}

// Shutdown stops intake, waits for the services, drains detached replies
// within the grace period and closes every component.
func (b *Bot) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}

	b.logger.Info("shutting down")
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var errs []error
	if err := b.tasks.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tasks: %w", err))
	}
	if err := b.platforms.CloseAll(); err != nil {
		errs = append(errs, fmt.Errorf("platforms: %w", err))
	}
	if err := b.plugins.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("plugins: %w", err))
	}
	if err := b.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := b.config.Close(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	return errors.Join(errs...)
}

// Publish feeds an event into the bus as if a platform had received it.
func (b *Bot) Publish(ctx context.Context, ev *domain.Event) error {
	if b.bus == nil {
		return bus.ErrClosed
	}
	return b.bus.Publish(ctx, ev)
}

// loop runs events through the pipeline one at a time, in arrival order.
func (b *Bot) loop(ctx context.Context) {
	for {
		ev, ok := b.bus.Consume(ctx)
		if !ok {
			return
		}
		b.scheduler.Load().Execute(ctx, ev)
	}
}

func (b *Bot) build(ctx context.Context, cfg *config.Config) error {
	logger := b.logger

	if b.store == nil {
		store, err := openStore(cfg.Storage)
		if err != nil {
			return err
		}
		b.store = store
	}
	if b.policy == nil {
		b.policy = ratelimit.NewPolicy()
	}

	contexts, err := conversation.NewManager(b.store, tokens.NewDefaultRegistry(),
		conversation.OptionsFromConfig(cfg.LLM.Context), logger)
	if err != nil {
		return fmt.Errorf("create context manager: %w", err)
	}
	b.contexts = contexts

	store, err := acl.Open(cfg.ACL.Path, cfg.ACL.Admins...)
	if err != nil {
		return fmt.Errorf("open acl: %w", err)
	}
	b.acl = store

	b.tasks = tasks.New(tasks.Options{
		MaxConcurrent: cfg.Tasks.MaxConcurrent,
		ShutdownGrace: cfg.Tasks.ShutdownGrace,
		Logger:        logger,
	})

	providers, err := registration.NewProviderRegistry()
	if err != nil {
		return fmt.Errorf("register providers: %w", err)
	}
	b.providers = provider.NewResolver(providers)

	if err := b.buildPlatforms(cfg); err != nil {
		return err
	}
	if err := b.buildPlugins(ctx, cfg); err != nil {
		return err
	}

	b.bus = bus.New(bus.DefaultCapacity, logger)
	b.pctx = &ports.PipelineContext{
		Config:    b.config,
		Platforms: b.platforms,
		Plugins:   b.plugins,
		Providers: b.providers,
		Contexts:  b.contexts,
		Tasks:     b.tasks,
		ACL:       b.acl,
		Limiter:   b.policy,
		Logger:    logger,
	}

	sched, err := b.buildScheduler(cfg)
	if err != nil {
		return err
	}
	b.scheduler.Store(sched)

	if cfg.Server.Enabled && !b.disableServer {
		b.buildServer(cfg)
	}
	if cfg.Janitor.Enabled {
		if b.janitor, err = b.buildJanitor(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) buildPlatforms(cfg *config.Config) error {
	b.platforms = platform.NewManager(b.logger)
	if err := registration.RegisterPlatforms(b.platforms); err != nil {
		return fmt.Errorf("register platforms: %w", err)
	}
	for name, f := range b.platformFactories {
		if err := b.platforms.RegisterFactory(name, f); err != nil {
			return fmt.Errorf("register platform %s: %w", name, err)
		}
	}
	if !b.skipConfiguredPlatforms {
		b.platforms.Load(cfg.Platforms)
	}
	for _, p := range b.extraPlatforms {
		if err := b.platforms.Add(p); err != nil {
			return fmt.Errorf("add platform: %w", err)
		}
	}
	return nil
}

func (b *Bot) buildPlugins(ctx context.Context, cfg *config.Config) error {
	b.plugins = plugin.NewManager(
		plugin.WithLogger(b.logger),
		plugin.WithACL(b.acl),
		plugin.WithMiddleware(plugin.Logging(b.logger)),
	)
	if err := registration.RegisterPlugins(ctx, b.plugins, b.platforms); err != nil {
		return fmt.Errorf("register plugins: %w", err)
	}
	for _, p := range b.extraPlugins {
		if err := b.plugins.Register(ctx, p); err != nil {
			return fmt.Errorf("register plugin %s: %w", p.Name(), err)
		}
	}
	for _, name := range cfg.Plugins.Disabled {
		if err := b.plugins.Disable(name); err != nil {
			b.logger.Warn("cannot disable plugin",
				slog.String("plugin", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (b *Bot) buildScheduler(cfg *config.Config) (*pipeline.Scheduler, error) {
	reg, err := registration.NewStageRegistry(cfg.Pipeline.Webhooks, b.extraStages)
	if err != nil {
		return nil, fmt.Errorf("register stages: %w", err)
	}
	stages, err := reg.Build(cfg.Pipeline.Stages)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return pipeline.NewScheduler(stages, b.pctx), nil
}

func (b *Bot) buildServer(cfg *config.Config) {
	srv := server.New(cfg.Server.Port, b.logger)
	srv.MountStatus(b, cfg.Server.AdminToken)

	limiter := server.RateLimitMiddleware(b.policy, cfg.Server.IngressMaxRequests, cfg.Server.IngressWindow)
	for _, name := range b.platforms.Names() {
		p, _ := b.platforms.GetPlatform(name)
		if in, ok := p.(server.Ingress); ok {
			srv.MountIngress(in, limiter)
		}
	}
	b.server = srv
}

func (b *Bot) buildJanitor(cfg *config.Config) (*janitor.Janitor, error) {
	var jobs []janitor.Task
	if p, ok := b.policy.(pruner); ok && cfg.Janitor.LimiterIdle > 0 {
		idle := cfg.Janitor.LimiterIdle
		jobs = append(jobs, janitor.Task{
			Name: "rate_limiters",
			Run: func(ctx context.Context) (int64, error) {
				return int64(p.Prune(idle)), nil
			},
		})
	}
	if cfg.Janitor.HistoryRetention > 0 {
		retention := cfg.Janitor.HistoryRetention
		jobs = append(jobs, janitor.Task{
			Name: "history",
			Run: func(ctx context.Context) (int64, error) {
				return b.contexts.Prune(ctx, retention)
			},
		})
	}
	j, err := janitor.New(cfg.Janitor.Schedule, jobs, janitor.WithLogger(b.logger))
	if err != nil {
		return nil, fmt.Errorf("create janitor: %w", err)
	}
	return j, nil
}

// reload applies a changed configuration. Stage settings are read per event;
// the context options and the stage chain are swapped here. Server, janitor,
// storage and platform changes take effect on restart.
func (b *Bot) reload(cfg *config.Config) {
	b.contexts.SetOptions(conversation.OptionsFromConfig(cfg.LLM.Context))

	sched, err := b.buildScheduler(cfg)
	if err != nil {
		b.logger.Error("config reload rejected, keeping current pipeline",
			slog.String("error", err.Error()),
		)
		return
	}
	b.scheduler.Store(sched)
	b.logger.Info("config reloaded", slog.Any("stages", sched.StageNames()))
}

// StageNames lists the active stages in execution order.
func (b *Bot) StageNames() []string {
	if s := b.scheduler.Load(); s != nil {
		return s.StageNames()
	}
	return nil
}

// PlatformStats reports per-platform counters.
func (b *Bot) PlatformStats() []platform.Stats {
	if b.platforms == nil {
		return nil
	}
	return b.platforms.Stats()
}

// Plugins lists registered plugins.
func (b *Bot) Plugins() []ports.PluginInfo {
	if b.plugins == nil {
		return nil
	}
	return b.plugins.Plugins()
}

// QueueDepth reports events waiting for the pipeline.
func (b *Bot) QueueDepth() int {
	if b.bus == nil {
		return 0
	}
	return b.bus.Len()
}

// RunningTasks reports detached replies queued or running.
func (b *Bot) RunningTasks() int {
	if b.tasks == nil {
		return 0
	}
	return b.tasks.Len()
}

// Scheduler returns the active pipeline.
func (b *Bot) Scheduler() *pipeline.Scheduler {
	return b.scheduler.Load()
}

var _ server.Status = (*Bot)(nil)

func openStore(cfg config.StorageConfig) (ports.HistoryStore, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := sqlite.New(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
