// Package echo is a small example plugin: an echo command and a greeting for
// members joining a group.
package echo

import (
	"context"
	"fmt"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/plugin"
)

const (
	Name    = "echo"
	Version = "1.0.0"
)

// DefaultGreeting is sent when a member joins. %s is replaced with the member id.
const DefaultGreeting = "Welcome, %s! Nya~"

// Plugin echoes text back and greets new group members.
type Plugin struct {
	platforms ports.PlatformManager
	greeting  string
}

// New creates the plugin. platforms may be nil, which disables greetings.
func New(platforms ports.PlatformManager) *Plugin {
	return &Plugin{platforms: platforms, greeting: DefaultGreeting}
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) Version() string     { return Version }
func (p *Plugin) Description() string { return "Repeats text and greets new group members." }

func (p *Plugin) Load(ctx context.Context, r *plugin.Registrar) error {
	return r.Register(&plugin.Command{
		Name:        "echo",
		Aliases:     []string{"say"},
		Description: "repeat the given text",
		Usage:       "<text>",
		Handler:     p.echo,
	})
}

func (p *Plugin) Unload(ctx context.Context) error { return nil }

func (p *Plugin) echo(ctx context.Context, call *plugin.Call) (string, error) {
	if len(call.Args) == 0 {
		return "Usage: echo <text>", nil
	}
	return strings.Join(call.Args, " "), nil
}

// HandleEvent greets members joining a group.
func (p *Plugin) HandleEvent(ctx context.Context, ev *domain.Event) error {
	if ev.Kind != domain.KindNotice || ev.Detail != "group_increase" || ev.GroupID == "" {
		return nil
	}
	if p.platforms == nil || ev.SenderID == ev.SelfID {
		return nil
	}
	return p.platforms.SendMessage(ctx, ev.PlatformID, domain.SubtypeGroup, ev.GroupID, fmt.Sprintf(p.greeting, ev.SenderID))
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.EventHandler = (*Plugin)(nil)
)
