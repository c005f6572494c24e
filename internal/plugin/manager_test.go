package plugin

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

type stubPlugin struct {
	name     string
	loads    int
	unloads  int
	toggles  []bool
	events   []*domain.Event
	eventErr error
	loadErr  error
	panics   bool
}

func (s *stubPlugin) Name() string        { return s.name }
func (s *stubPlugin) Version() string     { return "0.1.0" }
func (s *stubPlugin) Description() string { return "stub plugin" }

func (s *stubPlugin) Load(ctx context.Context, r *Registrar) error {
	s.loads++
	if err := r.Register(&Command{
		Name:        s.name + "-hello",
		Aliases:     []string{s.name + "-hi"},
		Description: "say hello",
		Handler: func(ctx context.Context, call *Call) (string, error) {
			if s.panics {
				panic("boom")
			}
			return "hello " + strings.Join(call.Args, ","), nil
		},
	}); err != nil {
		return err
	}
	if err := r.Register(&Command{
		Name:      s.name + "-admin",
		AdminOnly: true,
		Handler: func(ctx context.Context, call *Call) (string, error) {
			return "done", nil
		},
	}); err != nil {
		return err
	}
	return s.loadErr
}

func (s *stubPlugin) Unload(ctx context.Context) error {
	s.unloads++
	return nil
}

func (s *stubPlugin) OnEnable(ctx context.Context) error {
	s.toggles = append(s.toggles, true)
	return nil
}

func (s *stubPlugin) OnDisable(ctx context.Context) error {
	s.toggles = append(s.toggles, false)
	return nil
}

func (s *stubPlugin) HandleEvent(ctx context.Context, ev *domain.Event) error {
	s.events = append(s.events, ev)
	return s.eventErr
}

type adminList map[string]bool

func (a adminList) IsAdmin(userID string) bool    { return a[userID] }
func (a adminList) HasAdmins() bool               { return len(a) > 0 }
func (a adminList) AddAdmin(string) error         { return nil }
func (a adminList) RemoveAdmin(string) error      { return nil }
func (a adminList) Allow(string) error            { return nil }
func (a adminList) Disallow(string) error         { return nil }
func (a adminList) Allowed(sessionID string) bool { return false }

var _ ports.ACL = adminList(nil)

func newEvent(sender string) *domain.Event {
	return domain.NewMessageEvent("test", domain.SubtypePrivate, sender, "", "")
}

func TestManager_Register(t *testing.T) {
	m := NewManager()
	p := &stubPlugin{name: "a"}
	if err := m.Register(context.Background(), p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(context.Background(), &stubPlugin{name: "a"}); err == nil {
		t.Error("expected duplicate plugin to fail")
	}

	want := []ports.PluginInfo{{
		Name:        "a",
		Version:     "0.1.0",
		Description: "stub plugin",
		Enabled:     true,
		Commands:    []string{"a-admin", "a-hello"},
	}}
	if diff := cmp.Diff(want, m.Plugins()); diff != "" {
		t.Errorf("plugins mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_RegisterLoadFailure(t *testing.T) {
	m := NewManager()
	if err := m.Register(context.Background(), &stubPlugin{name: "bad", loadErr: errors.New("no config")}); err == nil {
		t.Fatal("expected load failure")
	}
	if len(m.Plugins()) != 0 {
		t.Error("failed plugin should not be registered")
	}
	if _, handled, _ := m.ExecuteCommand(context.Background(), "bad-hello", nil, newEvent("u")); handled {
		t.Error("commands of a failed plugin should be removed")
	}
}

func TestManager_CommandConflict(t *testing.T) {
	m := NewManager()
	if err := m.Register(context.Background(), &stubPlugin{name: "a"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	r := &Registrar{registry: m.registry, plugin: "b"}
	err := r.Register(&Command{Name: "A-HI", Handler: func(context.Context, *Call) (string, error) { return "", nil }})
	if err == nil {
		t.Error("expected alias conflict to fail")
	}
}

func TestManager_ExecuteCommand(t *testing.T) {
	var seen []string
	record := func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (string, error) {
			seen = append(seen, call.Command.Name)
			return next(ctx, call)
		}
	}
	m := NewManager(WithACL(adminList{"root": true}), WithMiddleware(record))
	p := &stubPlugin{name: "a"}
	if err := m.Register(context.Background(), p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name        string
		command     string
		sender      string
		args        []string
		wantReply   string
		wantHandled bool
	}{
		{name: "by name", command: "a-hello", sender: "u", args: []string{"x", "y"}, wantReply: "hello x,y", wantHandled: true},
		{name: "by alias", command: "a-hi", sender: "u", wantReply: "hello ", wantHandled: true},
		{name: "case insensitive", command: "A-Hello", sender: "u", wantReply: "hello ", wantHandled: true},
		{name: "admin allowed", command: "a-admin", sender: "root", wantReply: "done", wantHandled: true},
		{name: "admin refused", command: "a-admin", sender: "u", wantReply: "Permission denied: a-admin is for admins only.", wantHandled: true},
		{name: "unknown", command: "nope", sender: "u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, handled, err := m.ExecuteCommand(context.Background(), tt.command, tt.args, newEvent(tt.sender))
			if err != nil {
				t.Fatalf("ExecuteCommand() error = %v", err)
			}
			if handled != tt.wantHandled {
				t.Errorf("handled = %v, want %v", handled, tt.wantHandled)
			}
			if reply != tt.wantReply {
				t.Errorf("reply = %q, want %q", reply, tt.wantReply)
			}
		})
	}

	if len(seen) == 0 {
		t.Error("expected middleware to run")
	}
}

func TestManager_ExecuteCommandPanic(t *testing.T) {
	m := NewManager()
	if err := m.Register(context.Background(), &stubPlugin{name: "a", panics: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, handled, err := m.ExecuteCommand(context.Background(), "a-hello", nil, newEvent("u"))
	if !handled || err == nil {
		t.Errorf("expected handled panic as error, got handled=%v err=%v", handled, err)
	}
}

func TestManager_EnableDisable(t *testing.T) {
	m := NewManager()
	p := &stubPlugin{name: "a"}
	if err := m.Register(context.Background(), p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := m.Disable("a"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if _, handled, _ := m.ExecuteCommand(context.Background(), "a-hello", nil, newEvent("u")); handled {
		t.Error("disabled plugin should not handle commands")
	}
	if err := m.HandleMessage(context.Background(), newEvent("u")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(p.events) != 0 {
		t.Error("disabled plugin should not receive events")
	}

	if err := m.Enable("a"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if err := m.Enable("a"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	if diff := cmp.Diff([]bool{false, true}, p.toggles); diff != "" {
		t.Errorf("toggles mismatch (-want +got):\n%s", diff)
	}

	if err := m.Enable("missing"); !errors.Is(err, domain.ErrUnknownPlugin) {
		t.Errorf("expected ErrUnknownPlugin, got %v", err)
	}
}

func TestManager_Reload(t *testing.T) {
	m := NewManager()
	p := &stubPlugin{name: "a"}
	if err := m.Register(context.Background(), p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Reload(context.Background(), "a"); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if p.loads != 2 || p.unloads != 1 {
		t.Errorf("loads = %d, unloads = %d", p.loads, p.unloads)
	}
	if _, handled, _ := m.ExecuteCommand(context.Background(), "a-hi", nil, newEvent("u")); !handled {
		t.Error("commands should be registered again after reload")
	}
	if err := m.Reload(context.Background(), "missing"); !errors.Is(err, domain.ErrUnknownPlugin) {
		t.Errorf("expected ErrUnknownPlugin, got %v", err)
	}
}

func TestManager_HandleMessage(t *testing.T) {
	m := NewManager()
	ok := &stubPlugin{name: "ok"}
	failing := &stubPlugin{name: "failing", eventErr: errors.New("broken")}
	for _, p := range []*stubPlugin{ok, failing} {
		if err := m.Register(context.Background(), p); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	ev := newEvent("u")
	err := m.HandleMessage(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "failing") {
		t.Errorf("expected error naming the failing plugin, got %v", err)
	}
	if len(ok.events) != 1 || len(failing.events) != 1 {
		t.Error("every enabled plugin should receive the event")
	}
}

func TestManager_Help(t *testing.T) {
	m := NewManager()
	if err := m.Register(context.Background(), &stubPlugin{name: "a"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, err := m.Help("a")
	if err != nil {
		t.Fatalf("Help() error = %v", err)
	}
	want := "a 0.1.0\nstub plugin\nCommands:\n  a-admin (admin)\n  a-hello - say hello (aliases: a-hi)"
	if got != want {
		t.Errorf("Help() = %q, want %q", got, want)
	}
	if _, err := m.Help("missing"); !errors.Is(err, domain.ErrUnknownPlugin) {
		t.Errorf("expected ErrUnknownPlugin, got %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	p := &stubPlugin{name: "a"}
	if err := m.Register(context.Background(), p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.unloads != 1 || len(m.Plugins()) != 0 {
		t.Error("expected plugin to be unloaded and removed")
	}
}
