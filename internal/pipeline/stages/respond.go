package stages

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
)

// Respond delivers the pending response to the event's chat.
type Respond struct{ base }

func NewRespond() *Respond { return &Respond{} }

func (s *Respond) Name() string { return pipeline.StageRespond }

func (s *Respond) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	resp := ev.Response()
	if resp == nil || resp.Text == "" || resp.Delivered {
		return ports.Complete(), nil
	}
	if pctx.Platforms == nil {
		return ports.Complete(), domain.ErrNotFound(domain.ErrorCodeUnknownPlatform, "no platform manager")
	}

	target := ev.TargetID()
	pctx.Log().Info("sending reply",
		slog.String("platform", ev.PlatformID),
		slog.String("session", ev.SessionID()),
		slog.String("target", target),
		slog.String("text", trimForLog(resp.Text, 120)),
	)

	if err := pctx.Platforms.SendMessage(ctx, ev.PlatformID, ev.Subtype, target, resp.Text); err != nil {
		return ports.Complete(), domain.ErrPlatform(ev.PlatformID, err)
	}
	ev.MarkDelivered()
	return ports.Complete(), nil
}
