package stages

import (
	"context"
	"testing"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

func run(t *testing.T, stage ports.Stage, pctx *ports.PipelineContext, ev *domain.Event) {
	t.Helper()
	out, err := stage.Process(context.Background(), pctx, ev)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", stage.Name(), err)
	}
	if out.Suspended() {
		t.Fatalf("%s: expected Complete", stage.Name())
	}
}

func TestGates_DisabledNeverTouchToken(t *testing.T) {
	cfg := &config.Config{
		Whitelist:     config.WhitelistConfig{Private: []string{"nobody"}, Group: []string{"nowhere"}},
		ContentSafety: config.ContentSafetyConfig{SensitiveWords: []string{"hello"}},
		Session:       config.SessionConfig{},
		RateLimit:     config.RateLimitConfig{MaxMessages: 1, TimeWindow: 60},
	}
	e := newEnv(cfg)
	e.limiter.allow = false

	stages := []ports.Stage{NewWhitelistCheck(), NewContentSafetyCheck(), NewSessionStatusCheck(), NewRateLimit()}
	for _, ev := range []*domain.Event{groupEvent("hello"), privateEvent("hello")} {
		for _, s := range stages {
			run(t, s, e.pctx, ev)
		}
		if ev.Stopper() != nil {
			t.Errorf("disabled gates attached or touched the token for %s", ev.Describe())
		}
	}
}

func TestGates_SkipNonMessageEvents(t *testing.T) {
	cfg := &config.Config{
		Whitelist:     config.WhitelistConfig{Enabled: true, Group: []string{"other"}},
		ContentSafety: config.ContentSafetyConfig{Enabled: true, SensitiveWords: []string{"x"}},
		Session:       config.SessionConfig{Enabled: true},
		RateLimit:     config.RateLimitConfig{Enabled: true, MaxMessages: 1, TimeWindow: 60},
	}
	e := newEnv(cfg)
	e.limiter.allow = false

	ev := groupEvent("x")
	ev.Kind = domain.KindNotice
	for _, s := range []ports.Stage{NewWhitelistCheck(), NewContentSafetyCheck(), NewSessionStatusCheck(), NewRateLimit()} {
		run(t, s, e.pctx, ev)
	}
	if ev.IsStopped() {
		t.Errorf("notice stopped by %q", ev.StopReason())
	}
}

func TestWhitelistCheck(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.WhitelistConfig
		ev       *domain.Event
		allowSID string
		wantStop bool
	}{
		{
			name: "group listed",
			cfg:  config.WhitelistConfig{Enabled: true, Group: []string{"g1"}},
			ev:   groupEvent("hi"),
		},
		{
			name:     "group not listed",
			cfg:      config.WhitelistConfig{Enabled: true, Group: []string{"g2"}},
			ev:       groupEvent("hi"),
			wantStop: true,
		},
		{
			name: "empty scope list allows all",
			cfg:  config.WhitelistConfig{Enabled: true, Private: []string{"someone"}},
			ev:   groupEvent("hi"),
		},
		{
			name:     "private not listed",
			cfg:      config.WhitelistConfig{Enabled: true, Private: []string{"u2"}},
			ev:       privateEvent("hi"),
			wantStop: true,
		},
		{
			name:     "acl session whitelist admits",
			cfg:      config.WhitelistConfig{Enabled: true, Group: []string{"g2"}},
			ev:       groupEvent("hi"),
			allowSID: "group:g1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(&config.Config{Whitelist: tt.cfg})
			if tt.allowSID != "" {
				_ = e.acl.Allow(tt.allowSID)
			}
			run(t, NewWhitelistCheck(), e.pctx, tt.ev)
			if tt.ev.IsStopped() != tt.wantStop {
				t.Errorf("IsStopped() = %v, want %v", tt.ev.IsStopped(), tt.wantStop)
			}
			if tt.wantStop && tt.ev.StopReason() != "not in whitelist" {
				t.Errorf("StopReason() = %q", tt.ev.StopReason())
			}
		})
	}
}

func TestContentSafetyCheck(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		e := newEnv(&config.Config{ContentSafety: config.ContentSafetyConfig{
			Enabled:        enabled,
			SensitiveWords: []string{"biz"},
		}})
		ev := groupEvent("visit http://x.biz now")
		run(t, NewContentSafetyCheck(), e.pctx, ev)

		if ev.IsStopped() != enabled {
			t.Errorf("enabled=%v: IsStopped() = %v", enabled, ev.IsStopped())
		}
		if enabled && ev.StopReason() != "sensitive word: biz" {
			t.Errorf("StopReason() = %q", ev.StopReason())
		}
	}
}

func TestContentSafetyCheck_CaseInsensitiveAcrossSegments(t *testing.T) {
	e := newEnv(&config.Config{ContentSafety: config.ContentSafetyConfig{
		Enabled:        true,
		SensitiveWords: []string{"BadWord"},
	}})
	ev := groupEvent("")
	ev.Message = []domain.Segment{domain.Text("this is bad"), domain.Image("a.png", ""), domain.Text("WORD ok")}

	run(t, NewContentSafetyCheck(), e.pctx, ev)
	if !ev.IsStopped() {
		t.Error("expected match on concatenated text segments")
	}
}

func TestSessionStatusCheck(t *testing.T) {
	discuss := domain.NewMessageEvent("qq", domain.SubtypeDiscuss, "u1", "d1", "hi")
	tests := []struct {
		name     string
		sessions []string
		ev       *domain.Event
		wantStop bool
	}{
		{name: "listed session", sessions: []string{"group:g1"}, ev: groupEvent("hi")},
		{name: "unlisted session", sessions: []string{"group:g1"}, ev: privateEvent("hi"), wantStop: true},
		{name: "empty list allows all", ev: groupEvent("/ping")},
		{name: "empty list allows private", ev: privateEvent("hi")},
		{name: "other subtypes pass", sessions: []string{"group:g1"}, ev: discuss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(&config.Config{Session: config.SessionConfig{Enabled: true, EnabledSessions: tt.sessions}})
			run(t, NewSessionStatusCheck(), e.pctx, tt.ev)
			if tt.ev.IsStopped() != tt.wantStop {
				t.Errorf("IsStopped() = %v, want %v (reason %q)", tt.ev.IsStopped(), tt.wantStop, tt.ev.StopReason())
			}
			if tt.wantStop && tt.ev.StopReason() != "session disabled" {
				t.Errorf("StopReason() = %q, want session disabled", tt.ev.StopReason())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	e := newEnv(&config.Config{RateLimit: config.RateLimitConfig{Enabled: true, MaxMessages: 1, TimeWindow: 60}})

	ev := groupEvent("hi")
	run(t, NewRateLimit(), e.pctx, ev)
	if ev.IsStopped() {
		t.Fatal("allowed message stopped")
	}

	e.limiter.allow = false
	ev = groupEvent("hi again")
	run(t, NewRateLimit(), e.pctx, ev)
	if ev.StopReason() != "rate limited" {
		t.Errorf("StopReason() = %q, want rate limited", ev.StopReason())
	}
}
