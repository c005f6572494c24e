package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

func TestResultDecorate(t *testing.T) {
	cfg := &config.Config{ResultDecorate: config.ResultDecorateConfig{
		Enabled: true, Prefix: "> ", Suffix: " ~", MaxLength: 6,
	}}
	e := newEnv(cfg)

	ev := groupEvent("/ping")
	ev.SetResponse("purring loudly")

	out, err := NewResultDecorate().Process(context.Background(), e.pctx, ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Suspended() {
		t.Fatal("expected Suspend when a response is pending")
	}
	if got := ev.Response().Text; got != "> purri… ~" {
		t.Errorf("decorated = %q", got)
	}
	if err := out.Post()(context.Background()); err != nil {
		t.Errorf("post-phase error = %v", err)
	}
}

func TestResultDecorate_NoResponseOrDisabled(t *testing.T) {
	e := newEnv(&config.Config{ResultDecorate: config.ResultDecorateConfig{Prefix: "x"}})

	ev := groupEvent("hi")
	run(t, NewResultDecorate(), e.pctx, ev)
	if ev.Response() != nil {
		t.Error("no response should stay nil")
	}

	ev.SetResponse("plain")
	out, _ := NewResultDecorate().Process(context.Background(), e.pctx, ev)
	if !out.Suspended() {
		t.Error("expected Suspend for a pending response")
	}
	if ev.Response().Text != "plain" {
		t.Errorf("disabled decorate changed text to %q", ev.Response().Text)
	}
}

func TestRespond(t *testing.T) {
	e := newEnv(&config.Config{})

	ev := privateEvent("/ping")
	ev.SetResponse("Pong!")
	run(t, NewRespond(), e.pctx, ev)

	want := []sentMessage{{PlatformID: "qq", Subtype: domain.SubtypePrivate, TargetID: "u1", Text: "Pong!"}}
	if diff := cmp.Diff(want, e.platforms.messages()); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if !ev.Response().Delivered {
		t.Error("expected response marked delivered")
	}

	run(t, NewRespond(), e.pctx, ev)
	if len(e.platforms.messages()) != 1 {
		t.Error("delivered response sent twice")
	}
}

func TestRespond_NothingPending(t *testing.T) {
	e := newEnv(&config.Config{})
	run(t, NewRespond(), e.pctx, groupEvent("hi"))
	if len(e.platforms.messages()) != 0 {
		t.Error("expected no send")
	}
}

func TestRespond_SendFailure(t *testing.T) {
	e := newEnv(&config.Config{})
	e.platforms.err = errors.New("socket closed")

	ev := groupEvent("hi")
	ev.SetResponse("Pong!")
	_, err := NewRespond().Process(context.Background(), e.pctx, ev)
	if !errors.Is(err, domain.NewError(domain.ErrorTypePlatform, "")) {
		t.Errorf("expected platform error, got %v", err)
	}
	if ev.Response().Delivered {
		t.Error("failed send must not be marked delivered")
	}
}
