package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

type sentMessage struct {
	Subtype domain.Subtype
	Target  string
	Text    string
}

// fakePlatform records outgoing messages and blocks in Start until cancelled.
type fakePlatform struct {
	name string

	mu     sync.Mutex
	sent   []sentMessage
	notify chan struct{}
	closed bool
}

func newFakePlatform(name string) *fakePlatform {
	return &fakePlatform{name: name, notify: make(chan struct{}, 16)}
}

func (f *fakePlatform) Name() string { return f.name }
func (f *fakePlatform) Type() string { return "fake" }

func (f *fakePlatform) Start(ctx context.Context, sink ports.EventSink) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakePlatform) Send(ctx context.Context, subtype domain.Subtype, targetID, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{Subtype: subtype, Target: targetID, Text: text})
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

func (f *fakePlatform) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePlatform) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePlatform) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ACL.Path = filepath.Join(t.TempDir(), "acl.yaml")
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBot(t *testing.T, cfg *config.Config, opts ...Option) *Bot {
	t.Helper()
	opts = append([]Option{WithConfig(cfg), WithLogger(quietLogger()), WithoutServer()}, opts...)
	b, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
	return b
}

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error without a config provider")
	}
}

func TestNew_OptionError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(WithConfig(config.Default()), func(*Bot) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("New() error = %v, want %v", err, boom)
	}
}

func TestBot_CommandRoundTrip(t *testing.T) {
	fake := newFakePlatform("fake")
	b := startBot(t, testConfig(t), WithPlatform(fake), WithoutConfiguredPlatforms())

	ev := domain.NewMessageEvent("fake", domain.SubtypePrivate, "u1", "", "/echo nya")
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-fake.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	want := []sentMessage{{Subtype: domain.SubtypePrivate, Target: "u1", Text: "nya"}}
	if diff := cmp.Diff(want, fake.messages()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
}

func TestBot_StartTwice(t *testing.T) {
	b := startBot(t, testConfig(t), WithoutConfiguredPlatforms())
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestBot_Status(t *testing.T) {
	fake := newFakePlatform("fake")
	b := startBot(t, testConfig(t), WithPlatform(fake), WithoutConfiguredPlatforms())

	if diff := cmp.Diff(pipeline.DefaultOrder, b.StageNames()); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
	stats := b.PlatformStats()
	if len(stats) != 1 || stats[0].Name != "fake" {
		t.Errorf("PlatformStats() = %+v", stats)
	}
	if len(b.Plugins()) == 0 {
		t.Error("expected built-in plugins")
	}
	if b.QueueDepth() != 0 {
		t.Errorf("QueueDepth() = %d, want 0", b.QueueDepth())
	}
}

func TestBot_DisabledPlugins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Plugins.Disabled = []string{"echo", "missing"}
	b := startBot(t, cfg, WithoutConfiguredPlatforms())

	for _, p := range b.Plugins() {
		if p.Name == "echo" && p.Enabled {
			t.Error("echo should start disabled")
		}
	}
}

func TestBot_Reload(t *testing.T) {
	b := startBot(t, testConfig(t), WithoutConfiguredPlatforms())
	before := b.Scheduler()

	cfg := testConfig(t)
	cfg.Pipeline.Stages = []string{pipeline.StageWakingCheck, pipeline.StageProcess, pipeline.StageRespond}
	b.reload(cfg)

	want := []string{pipeline.StageWakingCheck, pipeline.StageProcess, pipeline.StageRespond}
	if diff := cmp.Diff(want, b.StageNames()); diff != "" {
		t.Errorf("stages mismatch (-want +got):\n%s", diff)
	}
	if b.Scheduler() == before {
		t.Error("expected a new scheduler")
	}

	cfg.Pipeline.Stages = []string{"NoSuchStage"}
	b.reload(cfg)
	if diff := cmp.Diff(want, b.StageNames()); diff != "" {
		t.Errorf("bad reload should keep the pipeline (-want +got):\n%s", diff)
	}
}

func TestBot_Shutdown(t *testing.T) {
	fake := newFakePlatform("fake")
	b, err := New(WithConfig(testConfig(t)), WithLogger(quietLogger()), WithoutServer(),
		WithPlatform(fake), WithoutConfiguredPlatforms())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() before Start error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case <-b.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}
	if !fake.isClosed() {
		t.Error("platform not closed")
	}
	if err := b.Publish(context.Background(), domain.NewMessageEvent("fake", domain.SubtypePrivate, "u1", "", "hi")); err == nil {
		t.Error("expected Publish to fail after shutdown")
	}
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
	}{
		{name: "default", cfg: config.StorageConfig{}},
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sub", "h.db")}}},
		{name: "unknown", cfg: config.StorageConfig{Type: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("openStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if store != nil {
				_ = store.Close()
			}
		})
	}
}
