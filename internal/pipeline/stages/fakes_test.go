package stages

import (
	"context"
	"errors"
	"sync"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

type sentMessage struct {
	PlatformID string
	Subtype    domain.Subtype
	TargetID   string
	Text       string
}

type fakePlatforms struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakePlatforms) GetPlatform(id string) (ports.Platform, bool) { return nil, false }

func (f *fakePlatforms) SendMessage(ctx context.Context, platformID string, subtype domain.Subtype, targetID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{platformID, subtype, targetID, text})
	return nil
}

func (f *fakePlatforms) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakePlugins struct {
	handled  []string
	commands map[string]string
	infos    []ports.PluginInfo
	enabled  []string
}

func (f *fakePlugins) HandleMessage(ctx context.Context, ev *domain.Event) error {
	f.handled = append(f.handled, ev.ID)
	return nil
}

func (f *fakePlugins) ExecuteCommand(ctx context.Context, name string, args []string, ev *domain.Event) (string, bool, error) {
	reply, ok := f.commands[name]
	return reply, ok, nil
}

func (f *fakePlugins) Plugins() []ports.PluginInfo { return f.infos }

func (f *fakePlugins) Enable(name string) error {
	for _, info := range f.infos {
		if info.Name == name {
			f.enabled = append(f.enabled, name)
			return nil
		}
	}
	return domain.ErrUnknownPlugin
}

func (f *fakePlugins) Disable(name string) error                     { return nil }
func (f *fakePlugins) Reload(ctx context.Context, name string) error { return nil }

func (f *fakePlugins) Help(name string) (string, error) {
	return "", domain.ErrUnknownPlugin
}

// syncTasks runs spawned work inline so tests can observe its effects.
type syncTasks struct {
	keys []string
	errs []error
}

func (s *syncTasks) Spawn(name, key string, fn func(ctx context.Context) error) error {
	s.keys = append(s.keys, key)
	s.errs = append(s.errs, fn(context.Background()))
	return nil
}

type fakeProvider struct {
	reply string
	err   error
	reqs  []*domain.ChatRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Chat(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	p.reqs = append(p.reqs, req)
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ChatResponse{Text: p.reply, Model: "fake-1", PromptTokens: 3, CompletionTokens: 2}, nil
}

type fakeResolver struct{ p *fakeProvider }

func (r fakeResolver) Resolve(ctx context.Context, cfg config.ProviderConfig) (ports.Provider, error) {
	if r.p == nil {
		return nil, errors.New("no provider")
	}
	return r.p, nil
}

type fakeContexts struct {
	history map[string][]domain.ChatMessage
}

func (f *fakeContexts) GetContext(ctx context.Context, id string) ([]domain.ChatMessage, error) {
	return f.history[id], nil
}

func (f *fakeContexts) AddMessage(ctx context.Context, id string, role domain.Role, content string) error {
	if f.history == nil {
		f.history = make(map[string][]domain.ChatMessage)
	}
	f.history[id] = append(f.history[id], domain.ChatMessage{Role: role, Content: content})
	return nil
}

type fakeACL struct {
	admins    map[string]bool
	whitelist map[string]bool
}

func newFakeACL(admins ...string) *fakeACL {
	a := &fakeACL{admins: map[string]bool{}, whitelist: map[string]bool{}}
	for _, id := range admins {
		a.admins[id] = true
	}
	return a
}

func (a *fakeACL) IsAdmin(id string) bool      { return a.admins[id] }
func (a *fakeACL) HasAdmins() bool             { return len(a.admins) > 0 }
func (a *fakeACL) AddAdmin(id string) error    { a.admins[id] = true; return nil }
func (a *fakeACL) RemoveAdmin(id string) error { delete(a.admins, id); return nil }
func (a *fakeACL) Allow(sid string) error      { a.whitelist[sid] = true; return nil }
func (a *fakeACL) Disallow(sid string) error   { delete(a.whitelist, sid); return nil }
func (a *fakeACL) Allowed(sid string) bool     { return a.whitelist[sid] }

type fakeLimiter struct {
	allow bool
	usage []*ports.UsageRecord
}

func (l *fakeLimiter) CheckRequest(ctx context.Context, req *ports.PolicyRequest) (*ports.PolicyDecision, error) {
	return &ports.PolicyDecision{Allow: l.allow, Reason: "test"}, nil
}

func (l *fakeLimiter) RecordUsage(ctx context.Context, u *ports.UsageRecord) error {
	l.usage = append(l.usage, u)
	return nil
}

// env bundles a pipeline context with its fakes.
type env struct {
	pctx      *ports.PipelineContext
	platforms *fakePlatforms
	plugins   *fakePlugins
	tasks     *syncTasks
	provider  *fakeProvider
	contexts  *fakeContexts
	acl       *fakeACL
	limiter   *fakeLimiter
}

func newEnv(cfg *config.Config) *env {
	e := &env{
		platforms: &fakePlatforms{},
		plugins:   &fakePlugins{commands: map[string]string{}},
		tasks:     &syncTasks{},
		provider:  &fakeProvider{reply: "meow"},
		contexts:  &fakeContexts{},
		acl:       newFakeACL(),
		limiter:   &fakeLimiter{allow: true},
	}
	e.pctx = &ports.PipelineContext{
		Config:    ports.StaticConfig{Config: cfg},
		Platforms: e.platforms,
		Plugins:   e.plugins,
		Providers: fakeResolver{p: e.provider},
		Contexts:  e.contexts,
		Tasks:     e.tasks,
		ACL:       e.acl,
		Limiter:   e.limiter,
	}
	return e
}

func groupEvent(text string) *domain.Event {
	ev := domain.NewMessageEvent("qq", domain.SubtypeGroup, "u1", "g1", text)
	ev.SelfID = "bot"
	return ev
}

func privateEvent(text string) *domain.Event {
	ev := domain.NewMessageEvent("qq", domain.SubtypePrivate, "u1", "", text)
	ev.SelfID = "bot"
	return ev
}

func providerConfig() []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "off", Type: "echo"},
		{Name: "main", Type: "echo", Enabled: true, Model: "m1", MaxTokens: 100},
	}
}
