package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// Call is one command invocation.
type Call struct {
	Event   *domain.Event
	Args    []string
	Command *Command
}

// Handler runs a command and returns the reply text, which may be empty.
type Handler func(ctx context.Context, call *Call) (string, error)

// Middleware wraps a handler.
type Middleware func(next Handler) Handler

// Command describes a plugin command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	AdminOnly   bool
	Handler     Handler

	plugin string
}

// Plugin returns the name of the plugin that registered the command.
func (c *Command) Plugin() string { return c.plugin }

// Help renders a short description of the command.
func (c *Command) Help() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.Usage != "" {
		b.WriteString(" " + c.Usage)
	}
	if c.Description != "" {
		b.WriteString(" - " + c.Description)
	}
	if len(c.Aliases) > 0 {
		fmt.Fprintf(&b, " (aliases: %s)", strings.Join(c.Aliases, ", "))
	}
	if c.AdminOnly {
		b.WriteString(" (admin)")
	}
	return b.String()
}

// CommandRegistry maps command names and aliases to commands. Names are
// case-insensitive.
type CommandRegistry struct {
	logger   *slog.Logger
	commands map[string]*Command
	mu       sync.RWMutex
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry(logger *slog.Logger) *CommandRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRegistry{
		logger:   logger,
		commands: make(map[string]*Command),
	}
}

// Register adds cmd under its name and aliases, wrapping its handler with mws
// (the first middleware is outermost). A name or alias already taken by
// another command is an error and nothing is registered.
func (r *CommandRegistry) Register(cmd *Command, mws ...Middleware) error {
	if cmd == nil || cmd.Name == "" || cmd.Handler == nil {
		return domain.ErrInvalidRequest("command requires a name and a handler")
	}

	keys := append([]string{cmd.Name}, cmd.Aliases...)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if existing, ok := r.commands[strings.ToLower(k)]; ok {
			return domain.ErrInvalidRequest(fmt.Sprintf("command %q already registered by %s", k, existing.plugin))
		}
	}

	handler := cmd.Handler
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	cmd.Handler = handler

	for _, k := range keys {
		r.commands[strings.ToLower(k)] = cmd
	}
	r.logger.Debug("command registered",
		slog.String("command", cmd.Name),
		slog.String("plugin", cmd.plugin),
		slog.Any("aliases", cmd.Aliases),
	)
	return nil
}

// Find resolves a name or alias.
func (r *CommandRegistry) Find(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// removePlugin drops every command owned by plugin.
func (r *CommandRegistry) removePlugin(plugin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, cmd := range r.commands {
		if cmd.plugin == plugin {
			delete(r.commands, k)
		}
	}
}

// byPlugin returns plugin's commands sorted by name, without alias duplicates.
func (r *CommandRegistry) byPlugin(plugin string) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Command]bool)
	var out []*Command
	for _, cmd := range r.commands {
		if cmd.plugin == plugin && !seen[cmd] {
			seen[cmd] = true
			out = append(out, cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Registrar is handed to a plugin's Load. Commands registered through it are
// owned by the plugin and wrapped with the manager's middleware.
type Registrar struct {
	registry *CommandRegistry
	plugin   string
	mws      []Middleware
}

// Register adds cmd for the plugin. mws run inside the manager's middleware.
func (r *Registrar) Register(cmd *Command, mws ...Middleware) error {
	if cmd == nil {
		return domain.ErrInvalidRequest("command is nil")
	}
	cmd.plugin = r.plugin
	chain := append(append([]Middleware{}, r.mws...), mws...)
	return r.registry.Register(cmd, chain...)
}
