package stages

import (
	"context"
	"log/slog"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
)

// RateLimit caps how many messages a session may send per time window.
type RateLimit struct{}

func NewRateLimit() *RateLimit { return &RateLimit{} }

func (s *RateLimit) Name() string { return pipeline.StageRateLimit }

func (s *RateLimit) Initialize(ctx context.Context, pctx *ports.PipelineContext) error {
	if pctx.Limiter == nil && pctx.Snapshot().RateLimit.Enabled {
		pctx.Log().Warn("rate limit enabled but no limiter configured; messages pass unchecked")
	}
	return nil
}

func (s *RateLimit) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	if ev.Kind != domain.KindMessage || pctx.Limiter == nil {
		return ports.Complete(), nil
	}
	cfg := pctx.Snapshot().RateLimit
	if !cfg.Enabled {
		return ports.Complete(), nil
	}

	decision, err := pctx.Limiter.CheckRequest(ctx, &ports.PolicyRequest{
		SessionID:   ev.SessionID(),
		UserID:      ev.SenderID,
		MaxMessages: cfg.MaxMessages,
		Window:      cfg.Window(),
	})
	if err != nil {
		return ports.Complete(), err
	}
	if !decision.Allow {
		pctx.Log().Debug("rate limited",
			slog.String("session", ev.SessionID()),
			slog.String("reason", decision.Reason),
			slog.Duration("retry_after", decision.RetryAfter),
		)
		ev.Stop("rate limited")
	}
	return ports.Complete(), nil
}
