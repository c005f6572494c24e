package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// RecordExchange stores a user turn and the assistant's reply.
// It best-effort logs on failure without failing the reply path.
func RecordExchange(ctx context.Context, store ports.ContextStore, conversationID, user, assistant string, logger *slog.Logger) {
	if store == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Decouple persistence from the task lifecycle so a shutdown does not drop
	// a reply that was already delivered; still enforce a short timeout.
	persistCtx, cancel := buildPersistenceContext(ctx, 5*time.Second)
	defer cancel()

	addMessage := func(role domain.Role, content string) {
		if content == "" {
			return
		}
		if err := store.AddMessage(persistCtx, conversationID, role, content); err != nil {
			logger.Error("failed to store message",
				slog.String("conversation_id", conversationID),
				slog.String("role", string(role)),
				slog.String("error", err.Error()),
			)
		}
	}

	addMessage(domain.RoleUser, user)
	addMessage(domain.RoleAssistant, assistant)
}

func buildPersistenceContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)

	if timeout <= 0 {
		return context.WithCancel(base)
	}

	return context.WithTimeout(base, timeout)
}
