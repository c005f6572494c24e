package stages

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// ResultDecorate rewrites the pending response before Respond sends it and
// observes the delivery once Respond has run.
type ResultDecorate struct{ base }

func NewResultDecorate() *ResultDecorate { return &ResultDecorate{} }

func (s *ResultDecorate) Name() string { return pipeline.StageResultDecorate }

func (s *ResultDecorate) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	resp := ev.Response()
	if resp == nil || resp.Text == "" {
		return ports.Complete(), nil
	}

	cfg := pctx.Snapshot().ResultDecorate
	if cfg.Enabled {
		ev.SetResponse(Decorate(cfg, resp.Text))
	}

	return ports.Suspend(func(ctx context.Context) error {
		out := ev.Response()
		pctx.Log().Debug("response outcome",
			slog.String("event_id", ev.ID),
			slog.Bool("delivered", out != nil && out.Delivered),
			slog.Bool("stopped", ev.IsStopped()),
		)
		return nil
	}), nil
}

// Decorate truncates text to MaxLength runes and wraps it in the configured
// prefix and suffix. A disabled config returns text unchanged.
func Decorate(cfg config.ResultDecorateConfig, text string) string {
	if !cfg.Enabled {
		return text
	}
	return cfg.Prefix + truncateRunes(text, cfg.MaxLength) + cfg.Suffix
}
