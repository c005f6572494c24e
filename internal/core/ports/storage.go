package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// HistoryStore persists conversation turns.
// Implementations: memory (default), sqlite.
type HistoryStore interface {
	// Append stores one turn.
	Append(ctx context.Context, rec *HistoryRecord) error

	// List returns the most recent limit turns of a conversation, oldest first.
	// limit <= 0 returns every turn.
	List(ctx context.Context, conversationID string, limit int) ([]*HistoryRecord, error)

	// Clear deletes every turn of a conversation.
	Clear(ctx context.Context, conversationID string) error

	// PruneBefore deletes turns older than t and returns how many were removed.
	PruneBefore(ctx context.Context, t time.Time) (int64, error)

	// Close closes the storage connection
	Close() error
}

// HistoryRecord is one stored turn.
type HistoryRecord struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversation_id"`
	Role           domain.Role `db:"role" json:"role"`
	Content        string      `db:"content" json:"content"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// ChatMessage converts the record to a context turn.
func (r *HistoryRecord) ChatMessage() domain.ChatMessage {
	return domain.ChatMessage{Role: r.Role, Content: r.Content, CreatedAt: r.CreatedAt}
}
