package stages

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/conversation"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

const defaultLLMTimeout = 60 * time.Second

// replyJob is the event data a detached reply needs. It is copied out of the
// event so the task never touches the event after the pipeline is done.
type replyJob struct {
	platformID     string
	subtype        domain.Subtype
	targetID       string
	sessionID      string
	conversationID string
	prompt         string
}

// spawnReply starts a generative reply as a detached task. Replies for the
// same conversation run in submission order.
func spawnReply(pctx *ports.PipelineContext, ev *domain.Event, prompt string) {
	if pctx.Tasks == nil || prompt == "" {
		return
	}

	job := replyJob{
		platformID:     ev.PlatformID,
		subtype:        ev.Subtype,
		targetID:       ev.TargetID(),
		sessionID:      ev.SessionID(),
		conversationID: ev.ConversationID(),
		prompt:         prompt,
	}

	err := pctx.Tasks.Spawn("llm_reply", job.conversationID, func(ctx context.Context) error {
		return generateReply(ctx, pctx, job)
	})
	if err != nil {
		pctx.Log().Warn("failed to spawn reply task",
			slog.String("conversation_id", job.conversationID),
			slog.String("error", err.Error()),
		)
	}
}

func generateReply(ctx context.Context, pctx *ports.PipelineContext, job replyJob) error {
	logger := pctx.Log().With(slog.String("conversation_id", job.conversationID))
	cfg := pctx.Snapshot()

	pc, ok := cfg.EnabledProvider()
	if !ok {
		logger.Warn("no enabled LLM provider")
		return nil
	}
	if pctx.Providers == nil {
		return domain.ErrNoProvider
	}
	provider, err := pctx.Providers.Resolve(ctx, pc)
	if err != nil {
		return err
	}

	var history []domain.ChatMessage
	if pctx.Contexts != nil {
		history, err = pctx.Contexts.GetContext(ctx, job.conversationID)
		if err != nil {
			logger.Warn("failed to load conversation context", slog.String("error", err.Error()))
		}
	}

	timeout := cfg.LLM.Timeout
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Chat(callCtx, &domain.ChatRequest{
		Model:        pc.Model,
		SystemPrompt: cfg.LLM.SystemPrompt,
		History:      history,
		Prompt:       job.prompt,
		MaxTokens:    pc.MaxTokens,
		Temperature:  pc.Temperature,
	})
	if err != nil {
		return domain.ErrProvider(pc.Name, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		logger.Warn("provider returned an empty reply", slog.String("provider", pc.Name))
		return nil
	}
	text = Decorate(cfg.ResultDecorate, text)

	if pctx.Platforms == nil {
		return domain.ErrPlatform(job.platformID, errors.New("no platform manager"))
	}
	if err := pctx.Platforms.SendMessage(ctx, job.platformID, job.subtype, job.targetID, text); err != nil {
		return domain.ErrPlatform(job.platformID, err)
	}
	logger.Info("reply sent",
		slog.String("provider", provider.Name()),
		slog.String("target", job.targetID),
		slog.Duration("duration", time.Since(start)),
		slog.String("text", trimForLog(text, 120)),
	)

	conversation.RecordExchange(ctx, pctx.Contexts, job.conversationID, job.prompt, resp.Text, logger)

	if pctx.Limiter != nil {
		if err := pctx.Limiter.RecordUsage(ctx, &ports.UsageRecord{
			SessionID:        job.sessionID,
			Provider:         pc.Name,
			Model:            resp.Model,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
		}); err != nil {
			logger.Warn("failed to record usage", slog.String("error", err.Error()))
		}
	}
	return nil
}
