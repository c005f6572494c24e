package stages

import (
	"context"
	"slices"
	"strings"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"
)

// base supplies the no-op Initialize shared by the built-in stages.
type base struct{}

func (base) Initialize(ctx context.Context, pctx *ports.PipelineContext) error { return nil }

// WhitelistCheck drops messages from sessions outside the configured whitelist.
type WhitelistCheck struct{ base }

func NewWhitelistCheck() *WhitelistCheck { return &WhitelistCheck{} }

func (s *WhitelistCheck) Name() string { return pipeline.StageWhitelistCheck }

func (s *WhitelistCheck) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	if ev.Kind != domain.KindMessage {
		return ports.Complete(), nil
	}
	cfg := pctx.Snapshot().Whitelist
	if !cfg.Enabled {
		return ports.Complete(), nil
	}

	if pctx.ACL != nil && pctx.ACL.Allowed(ev.SessionID()) {
		return ports.Complete(), nil
	}

	list, id := cfg.Group, ev.GroupID
	if ev.IsPrivate() {
		list, id = cfg.Private, ev.SenderID
	}
	if len(list) == 0 || slices.Contains(list, id) {
		return ports.Complete(), nil
	}

	ev.Stop("not in whitelist")
	return ports.Complete(), nil
}

// ContentSafetyCheck drops messages containing a configured sensitive word.
type ContentSafetyCheck struct{ base }

func NewContentSafetyCheck() *ContentSafetyCheck { return &ContentSafetyCheck{} }

func (s *ContentSafetyCheck) Name() string { return pipeline.StageContentSafetyCheck }

func (s *ContentSafetyCheck) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	if ev.Kind != domain.KindMessage {
		return ports.Complete(), nil
	}
	cfg := pctx.Snapshot().ContentSafety
	if !cfg.Enabled || len(cfg.SensitiveWords) == 0 {
		return ports.Complete(), nil
	}

	text := strings.ToLower(ev.PlainText())
	for _, word := range cfg.SensitiveWords {
		w := strings.ToLower(strings.TrimSpace(word))
		if w != "" && strings.Contains(text, w) {
			ev.Stop("sensitive word: " + word)
			break
		}
	}
	return ports.Complete(), nil
}

// SessionStatusCheck drops private and group messages from sessions missing
// from a non-empty enabled_sessions list.
type SessionStatusCheck struct{ base }

func NewSessionStatusCheck() *SessionStatusCheck { return &SessionStatusCheck{} }

func (s *SessionStatusCheck) Name() string { return pipeline.StageSessionStatusCheck }

func (s *SessionStatusCheck) Process(ctx context.Context, pctx *ports.PipelineContext, ev *domain.Event) (ports.Outcome, error) {
	if ev.Kind != domain.KindMessage {
		return ports.Complete(), nil
	}
	cfg := pctx.Snapshot().Session
	if !cfg.Enabled {
		return ports.Complete(), nil
	}
	if ev.Subtype != domain.SubtypePrivate && ev.Subtype != domain.SubtypeGroup {
		return ports.Complete(), nil
	}
	if len(cfg.EnabledSessions) > 0 && !slices.Contains(cfg.EnabledSessions, ev.SessionID()) {
		ev.Stop("session disabled")
	}
	return ports.Complete(), nil
}
