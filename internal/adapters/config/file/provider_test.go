package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestNewProvider_EmptyPath(t *testing.T) {
	if _, err := NewProvider(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestProvider_LoadAndCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "llm_reply_mode: passive\n")

	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if got := p.Current(); got == nil || got.LLMReplyMode != "" {
		t.Errorf("Current() before Load = %+v, want empty config", got)
	}

	cfg, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMReplyMode != config.ReplyModePassive {
		t.Errorf("LLMReplyMode = %q, want passive", cfg.LLMReplyMode)
	}

	snapshot := p.Current()
	snapshot.LLMReplyMode = config.ReplyModeAt
	if p.Current().LLMReplyMode != config.ReplyModePassive {
		t.Error("Current() must return an independent copy")
	}
}

func TestProvider_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "llm_reply_mode: passive\n")

	p, err := NewProvider(path)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	if _, err := p.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *config.Config, 4)
	if err := p.Watch(ctx, func(cfg *config.Config) { changes <- cfg }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeConfig(t, path, "llm_reply_mode: at\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.LLMReplyMode != config.ReplyModeAt {
				continue
			}
			if p.Current().LLMReplyMode != config.ReplyModeAt {
				t.Error("Current() not updated after reload")
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
