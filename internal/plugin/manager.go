package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithACL sets the admin list consulted for admin-only commands. Without one,
// admin-only commands are refused for everybody.
func WithACL(acl ports.ACL) Option {
	return func(m *Manager) {
		m.acl = acl
	}
}

// WithMiddleware wraps every plugin command handler.
func WithMiddleware(mws ...Middleware) Option {
	return func(m *Manager) {
		m.mws = append(m.mws, mws...)
	}
}

type entry struct {
	plugin  Plugin
	enabled bool
}

// Manager implements ports.PluginManager over compiled-in plugins.
type Manager struct {
	logger   *slog.Logger
	acl      ports.ACL
	mws      []Middleware
	registry *CommandRegistry

	mu      sync.RWMutex
	plugins map[string]*entry
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{plugins: make(map[string]*entry)}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.registry = NewCommandRegistry(m.logger)
	return m
}

// Register loads p and enables it.
func (m *Manager) Register(ctx context.Context, p Plugin) error {
	name := p.Name()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.plugins[name]; exists {
		return domain.ErrInvalidRequest(fmt.Sprintf("plugin %q already registered", name))
	}
	if err := m.load(ctx, p); err != nil {
		return err
	}
	m.plugins[name] = &entry{plugin: p, enabled: true}
	m.logger.Info("plugin registered",
		slog.String("plugin", name),
		slog.String("version", p.Version()),
	)
	return nil
}

func (m *Manager) load(ctx context.Context, p Plugin) error {
	name := p.Name()
	r := &Registrar{registry: m.registry, plugin: name, mws: m.mws}
	if err := p.Load(ctx, r); err != nil {
		m.registry.removePlugin(name)
		return fmt.Errorf("load plugin %s: %w", name, err)
	}
	return nil
}

func (m *Manager) lookup(name string) (*entry, error) {
	e, ok := m.plugins[name]
	if !ok {
		return nil, domain.ErrNotFound(domain.ErrorCodeUnknownPlugin, fmt.Sprintf("plugin %q is not registered", name))
	}
	return e, nil
}

// Plugins lists registered plugins sorted by name.
func (m *Manager) Plugins() []ports.PluginInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ports.PluginInfo, 0, len(m.plugins))
	for name, e := range m.plugins {
		info := ports.PluginInfo{
			Name:        name,
			Version:     e.plugin.Version(),
			Description: e.plugin.Description(),
			Enabled:     e.enabled,
		}
		for _, cmd := range m.registry.byPlugin(name) {
			info.Commands = append(info.Commands, cmd.Name)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Enable turns a plugin on.
func (m *Manager) Enable(name string) error {
	return m.toggle(name, true)
}

// Disable turns a plugin off. Its commands stay registered but are not run.
func (m *Manager) Disable(name string) error {
	return m.toggle(name, false)
}

func (m *Manager) toggle(name string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	if e.enabled == enabled {
		return nil
	}
	if t, ok := e.plugin.(Toggler); ok {
		hook := t.OnDisable
		if enabled {
			hook = t.OnEnable
		}
		if err := hook(context.Background()); err != nil {
			return err
		}
	}
	e.enabled = enabled
	m.logger.Info("plugin toggled", slog.String("plugin", name), slog.Bool("enabled", enabled))
	return nil
}

// Reload unloads a plugin and loads it again, keeping its enabled state.
func (m *Manager) Reload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookup(name)
	if err != nil {
		return err
	}
	if err := e.plugin.Unload(ctx); err != nil {
		m.logger.Warn("plugin unload failed", slog.String("plugin", name), slog.String("error", err.Error()))
	}
	m.registry.removePlugin(name)
	if err := m.load(ctx, e.plugin); err != nil {
		e.enabled = false
		return err
	}
	m.logger.Info("plugin reloaded", slog.String("plugin", name))
	return nil
}

// Help describes a plugin and its commands.
func (m *Manager) Help(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.lookup(name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", name, e.plugin.Version())
	if !e.enabled {
		b.WriteString(" (disabled)")
	}
	if d := e.plugin.Description(); d != "" {
		b.WriteString("\n" + d)
	}
	cmds := m.registry.byPlugin(name)
	if len(cmds) == 0 {
		b.WriteString("\nNo commands.")
		return b.String(), nil
	}
	b.WriteString("\nCommands:")
	for _, cmd := range cmds {
		b.WriteString("\n  " + cmd.Help())
	}
	return b.String(), nil
}

// HandleMessage hands ev to every enabled plugin that handles events. One
// plugin failing does not stop the others.
func (m *Manager) HandleMessage(ctx context.Context, ev *domain.Event) error {
	m.mu.RLock()
	var handlers []EventHandler
	var names []string
	for name, e := range m.plugins {
		if h, ok := e.plugin.(EventHandler); ok && e.enabled {
			handlers = append(handlers, h)
			names = append(names, name)
		}
	}
	m.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		err := guard(func() error { return h.HandleEvent(ctx, ev) })
		if err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// ExecuteCommand runs the enabled plugin command registered as name.
func (m *Manager) ExecuteCommand(ctx context.Context, name string, args []string, ev *domain.Event) (string, bool, error) {
	cmd, ok := m.registry.Find(name)
	if !ok {
		return "", false, nil
	}

	m.mu.RLock()
	e, found := m.plugins[cmd.plugin]
	enabled := found && e.enabled
	m.mu.RUnlock()
	if !enabled {
		return "", false, nil
	}

	if cmd.AdminOnly && (m.acl == nil || !m.acl.IsAdmin(ev.SenderID)) {
		return "Permission denied: " + cmd.Name + " is for admins only.", true, nil
	}

	var reply string
	err := guard(func() error {
		var err error
		reply, err = cmd.Handler(ctx, &Call{Event: ev, Args: args, Command: cmd})
		return err
	})
	if err != nil {
		return "", true, err
	}
	return reply, true, nil
}

// Close unloads every plugin.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, e := range m.plugins {
		if err := e.plugin.Unload(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unload %s: %w", name, err))
		}
		m.registry.removePlugin(name)
	}
	m.plugins = make(map[string]*entry)
	return errors.Join(errs...)
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

var _ ports.PluginManager = (*Manager)(nil)
