package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// Process dispatches woken messages to commands, plugins and the generative
// reply path. Notices and requests only reach plugins.
type Process struct {
	commands *Commands
}

func NewProcess() *Process {
	return &Process{commands: NewBuiltinCommands()}
}

func (s *Process) Name() string { return pipeline.StageProcess }

func (s *Process) Initialize(ctx context.Context, pctx *ports.PipelineContext) error {
	if pctx.Plugins == nil {
		pctx.Log().Debug("no plugin manager configured")
	}
	if pctx.Tasks == nil {
		pctx.Log().Warn("no task spawner configured; generative replies are disabled")
	}
	return nil
}

func (s *Process) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	switch ev.Kind {
	case domain.KindMessage:
		s.processMessage(ctx, pctx, ev)
	case domain.KindNotice, domain.KindRequest:
		pctx.Log().Info("event received",
			slog.String("kind", string(ev.Kind)),
			slog.String("detail", ev.Detail),
			slog.String("platform", ev.PlatformID),
		)
		dispatchPlugins(ctx, pctx, ev)
	}
	return ports.Complete(), nil
}

func (s *Process) processMessage(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) {
	cfg := pctx.Snapshot()
	text := strings.TrimSpace(FormatMessage(ev))

	attrs := []any{
		slog.String("platform", ev.PlatformID),
		slog.String("session", ev.SessionID()),
		slog.String("sender", senderDisplay(ev)),
		slog.String("text", trimForLog(text, 120)),
	}
	if ev.GroupName != "" {
		attrs = append(attrs, slog.String("group_name", ev.GroupName))
	}
	pctx.Log().Info("message received", attrs...)

	dispatchPlugins(ctx, pctx, ev)

	prefix, isCommand := commandPrefix(cfg, ev.PlatformID, text)
	if isCommand && s.runCommand(ctx, pctx, ev, prefix, strings.TrimPrefix(text, prefix)) {
		return
	}

	if shouldReply(cfg.ReplyMode(), ev, isCommand) {
		spawnReply(pctx, ev, text)
	}
}

// runCommand tries built-in commands, then plugin commands.
func (s *Process) runCommand(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event, prefix, body string) bool {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	call := &commandCall{pctx: pctx, ev: ev, name: name, args: args, prefix: prefix}
	if reply, ok := s.commands.Run(ctx, call); ok {
		pctx.Log().Debug("built-in command handled", slog.String("command", call.name))
		if reply != "" {
			ev.SetResponse(reply)
		}
		return true
	}

	if pctx.Plugins == nil {
		return false
	}
	reply, handled, err := pctx.Plugins.ExecuteCommand(ctx, strings.ToLower(name), args, ev)
	if err != nil {
		pctx.Log().Error("plugin command failed",
			slog.String("command", name),
			slog.String("error", err.Error()),
		)
		ev.SetResponse("Command " + name + " failed.")
		return true
	}
	if !handled {
		pctx.Log().Warn("no handler for command", slog.String("command", name))
		return false
	}
	if reply != "" {
		ev.SetResponse(reply)
	}
	return true
}

func dispatchPlugins(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) {
	if pctx.Plugins == nil {
		return
	}
	if err := pctx.Plugins.HandleMessage(ctx, ev); err != nil {
		pctx.Log().Error("plugin dispatch failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// commandPrefix returns the platform's command prefix if text starts with it.
func commandPrefix(cfg *config.Config, platform, text string) (string, bool) {
	p := cfg.CommandPrefix(platform)
	if !strings.HasPrefix(text, p) {
		return "", false
	}
	return p, true
}

// shouldReply applies the reply mode to a message no command handled.
func shouldReply(mode string, ev *domain.Event, isCommand bool) bool {
	if ev.IsPrivate() {
		return mode != config.ReplyModePassive
	}
	switch mode {
	case config.ReplyModePassive:
		return false
	case config.ReplyModeAt:
		return AtsSelf(ev)
	case config.ReplyModeCommand:
		return isCommand
	default:
		return true
	}
}

func senderDisplay(ev *domain.Event) string {
	if ev.SenderName == "" {
		return ev.SenderID
	}
	return ev.SenderName + "(" + ev.SenderID + ")"
}
