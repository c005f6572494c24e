// Package plugin hosts compiled-in plugins: it tracks their enabled state,
// routes commands to them and fans inbound events out to their handlers.
package plugin

import (
	"context"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// Plugin is a unit of bot behaviour. Load registers the plugin's commands and
// is called again on every reload.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	Load(ctx context.Context, r *Registrar) error
	Unload(ctx context.Context) error
}

// EventHandler is implemented by plugins that observe every dispatched event,
// including notices and requests.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *domain.Event) error
}

// Toggler is implemented by plugins that react to being enabled or disabled.
type Toggler interface {
	OnEnable(ctx context.Context) error
	OnDisable(ctx context.Context) error
}
