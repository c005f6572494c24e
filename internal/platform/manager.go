// Package platform manages chat platform adapters: it builds them from
// configuration, starts them against the event sink and routes outbound
// messages by platform id.
package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// Factory creates an adapter from its configuration entry.
type Factory func(cfg config.PlatformConfig, logger *slog.Logger) (ports.Platform, error)

// Stats are per-platform message counters.
type Stats struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Received int64  `json:"received"`
	Sent     int64  `json:"sent"`
	Failed   int64  `json:"failed"`
}

type entry struct {
	platform ports.Platform
	received atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
}

// Manager owns the running platform adapters.
type Manager struct {
	logger *slog.Logger

	mu        sync.RWMutex
	factories map[string]Factory
	platforms map[string]*entry
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		factories: make(map[string]Factory),
		platforms: make(map[string]*entry),
	}
}

// RegisterFactory makes a platform type available to Load.
func (m *Manager) RegisterFactory(platformType string, f Factory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.factories[platformType]; exists {
		return domain.ErrInvalidRequest(fmt.Sprintf("platform factory %q already registered", platformType))
	}
	m.factories[platformType] = f
	return nil
}

// Load builds every enabled platform. Unknown types and factory failures are
// logged and skipped so one broken adapter never blocks the rest.
func (m *Manager) Load(cfgs []config.PlatformConfig) {
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			m.logger.Debug("platform disabled, skipping", slog.String("platform", cfg.Name))
			continue
		}

		m.mu.RLock()
		factory, ok := m.factories[cfg.Type]
		m.mu.RUnlock()
		if !ok {
			m.logger.Warn("unknown platform type", slog.String("platform", cfg.Name), slog.String("type", cfg.Type))
			continue
		}

		p, err := factory(cfg, m.logger.With(slog.String("platform", cfg.Name)))
		if err != nil {
			m.logger.Error("failed to create platform", slog.String("platform", cfg.Name), slog.String("error", err.Error()))
			continue
		}
		if err := m.Add(p); err != nil {
			m.logger.Error("failed to add platform", slog.String("platform", cfg.Name), slog.String("error", err.Error()))
			continue
		}
		m.logger.Info("platform loaded", slog.String("platform", cfg.Name), slog.String("type", cfg.Type))
	}
}

// Add registers a ready-made adapter under its name.
func (m *Manager) Add(p ports.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.platforms[p.Name()]; exists {
		return domain.ErrInvalidRequest(fmt.Sprintf("platform %q already registered", p.Name()))
	}
	m.platforms[p.Name()] = &entry{platform: p}
	return nil
}

// GetPlatform looks up an adapter by id.
func (m *Manager) GetPlatform(id string) (ports.Platform, bool) {
	e, ok := m.get(id)
	if !ok {
		return nil, false
	}
	return e.platform, true
}

func (m *Manager) get(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.platforms[id]
	return e, ok
}

// Names returns the registered platform ids, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.platforms))
	for name := range m.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SendMessage delivers text through the named platform.
func (m *Manager) SendMessage(ctx context.Context, platformID string, subtype domain.Subtype, targetID, text string) error {
	e, ok := m.get(platformID)
	if !ok {
		return domain.ErrNotFound(domain.ErrorCodeUnknownPlatform, fmt.Sprintf("platform %q is not registered", platformID))
	}
	if err := e.platform.Send(ctx, subtype, targetID, text); err != nil {
		e.failed.Add(1)
		return err
	}
	e.sent.Add(1)
	return nil
}

// StartAll runs every adapter until ctx is done. A failing adapter is logged
// and does not stop the others.
func (m *Manager) StartAll(ctx context.Context, sink ports.EventSink) error {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.platforms))
	for _, e := range m.platforms {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			name := e.platform.Name()
			m.logger.Info("starting platform", slog.String("platform", name))
			err := e.platform.Start(gctx, countingSink{sink: sink, entry: e})
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("platform stopped with error", slog.String("platform", name), slog.String("error", err.Error()))
				return nil
			}
			m.logger.Info("platform stopped", slog.String("platform", name))
			return nil
		})
	}
	return g.Wait()
}

// CloseAll closes every adapter.
func (m *Manager) CloseAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var errs []error
	for name, e := range m.platforms {
		if err := e.platform.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Stats reports counters for every platform, sorted by name.
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stats, 0, len(m.platforms))
	for name, e := range m.platforms {
		out = append(out, Stats{
			Name:     name,
			Type:     e.platform.Type(),
			Received: e.received.Load(),
			Sent:     e.sent.Load(),
			Failed:   e.failed.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type countingSink struct {
	sink  ports.EventSink
	entry *entry
}

func (c countingSink) Publish(ctx context.Context, ev *domain.Event) error {
	c.entry.received.Add(1)
	return c.sink.Publish(ctx, ev)
}

var _ ports.PlatformManager = (*Manager)(nil)
