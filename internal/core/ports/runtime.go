package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// ConfigProvider loads and manages configuration.
// Implementations: file-based (default).
type ConfigProvider interface {
	ConfigSource
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// EventSink receives events produced by platform adapters.
type EventSink interface {
	Publish(ctx context.Context, ev *domain.Event) error
}

// Platform is a chat platform adapter.
// Implementations: onebot, discord, console.
type Platform interface {
	Name() string
	Type() string
	// Start connects and feeds inbound events to sink until ctx is done.
	Start(ctx context.Context, sink EventSink) error
	Send(ctx context.Context, subtype domain.Subtype, targetID, text string) error
	Close() error
}

// PlatformManager routes outbound messages to the right adapter.
type PlatformManager interface {
	GetPlatform(id string) (Platform, bool)
	SendMessage(ctx context.Context, platformID string, subtype domain.Subtype, targetID, text string) error
}

// PluginInfo describes a registered plugin.
type PluginInfo struct {
	Name        string
	Version     string
	Description string
	Enabled     bool
	Commands    []string
}

// PluginManager dispatches events and commands to plugins.
type PluginManager interface {
	HandleMessage(ctx context.Context, ev *domain.Event) error
	// ExecuteCommand runs a plugin command. handled is false when no enabled
	// plugin registers name.
	ExecuteCommand(ctx context.Context, name string, args []string, ev *domain.Event) (reply string, handled bool, err error)
	Plugins() []PluginInfo
	Enable(name string) error
	Disable(name string) error
	Reload(ctx context.Context, name string) error
	Help(name string) (string, error)
}

// Provider generates replies.
// Implementations: openai, anthropic, echo.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error)
}

// ProviderResolver turns a provider configuration into an implementation.
type ProviderResolver interface {
	Resolve(ctx context.Context, cfg config.ProviderConfig) (Provider, error)
}

// ContextStore keeps per-conversation history with compression applied.
type ContextStore interface {
	GetContext(ctx context.Context, conversationID string) ([]domain.ChatMessage, error)
	AddMessage(ctx context.Context, conversationID string, role domain.Role, content string) error
}

// TaskSpawner runs detached work. Tasks sharing a key run one at a time in
// submission order.
type TaskSpawner interface {
	Spawn(name, key string, fn func(ctx context.Context) error) error
}

// ACL tracks bot admins and the runtime session whitelist.
type ACL interface {
	IsAdmin(userID string) bool
	HasAdmins() bool
	AddAdmin(userID string) error
	RemoveAdmin(userID string) error
	Allow(sessionID string) error
	Disallow(sessionID string) error
	Allowed(sessionID string) bool
}

// QualityPolicy enforces rate limits and policies.
// Implementations: basic (no limits), ratelimit (token bucket per session).
type QualityPolicy interface {
	CheckRequest(ctx context.Context, req *PolicyRequest) (*PolicyDecision, error)
	RecordUsage(ctx context.Context, usage *UsageRecord) error
}

// PolicyRequest contains event context for policy checks.
type PolicyRequest struct {
	SessionID   string
	UserID      string
	MaxMessages int
	Window      time.Duration
}

// PolicyDecision is the result of a policy check.
type PolicyDecision struct {
	Allow      bool
	Reason     string
	RetryAfter time.Duration
}

// UsageRecord tracks provider usage of one generated reply.
type UsageRecord struct {
	SessionID        string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
}
