package stages

import (
	"context"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
)

// WakingCheck decides whether a message is directed at the bot.
type WakingCheck struct{ base }

func NewWakingCheck() *WakingCheck { return &WakingCheck{} }

func (s *WakingCheck) Name() string { return pipeline.StageWakingCheck }

func (s *WakingCheck) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	if ev.Kind != domain.KindMessage || len(ev.Message) == 0 || ev.SelfID == "" {
		return ports.Complete(), nil
	}
	if !IsWoken(pctx.Snapshot(), ev) {
		ev.Stop("not woken")
	}
	return ports.Complete(), nil
}

// IsWoken evaluates the wake rules in precedence order.
func IsWoken(cfg *config.Config, ev *domain.Event) bool {
	for _, seg := range ev.Message {
		if seg.IsAtAll() && !cfg.IgnoreAtAll {
			return true
		}
	}

	suppressed := false
	if !ev.IsPrivate() {
		first := ev.Message[0]
		suppressed = first.Type == domain.SegmentAt && !first.IsAtAll() && first.Target != ev.SelfID
	}

	if AtsSelf(ev) {
		return true
	}

	for _, seg := range ev.Message {
		if seg.Type == domain.SegmentReply && seg.SenderID == ev.SelfID {
			return true
		}
	}

	if !suppressed {
		for _, seg := range ev.Message {
			if seg.Type != domain.SegmentText {
				continue
			}
			if hasPrefix(strings.TrimSpace(seg.Text), cfg.WakePrefixes()) {
				return true
			}
		}
	}

	if ev.IsPrivate() && !cfg.PrivateMessageNeedsWakePrefix {
		return true
	}

	if cfg.Waking.Enabled && len(cfg.Waking.Prefixes) > 0 && !suppressed {
		if hasPrefix(ev.PlainText(), cfg.Waking.Prefixes) {
			return true
		}
	}

	return false
}

// AtsSelf reports whether the message carries an at segment for the bot.
// Quoting one of the bot's messages does not count.
func AtsSelf(ev *domain.Event) bool {
	if ev.SelfID == "" {
		return false
	}
	for _, seg := range ev.Message {
		if seg.Mentions(ev.SelfID) {
			return true
		}
	}
	return false
}

func hasPrefix(text string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}
