// Package conversation keeps per-conversation LLM history and compresses it
// before it is handed to a provider.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/pkg/config"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/tokens"
)

// historyWindow bounds how many stored turns are loaded per conversation.
const historyWindow = 200

// Options configures a Manager.
type Options struct {
	Strategy    Strategy
	MaxMessages int
	MaxTokens   int
	CacheSize   int
	// Model selects the tokenizer used for the token cap.
	Model string
}

// OptionsFromConfig converts the llm.context section.
func OptionsFromConfig(c config.ContextConfig) Options {
	return Options{
		Strategy:    ParseStrategy(c.Strategy),
		MaxMessages: c.MaxMessages,
		MaxTokens:   c.MaxTokens,
		CacheSize:   c.CacheSize,
		Model:       c.Model,
	}
}

// Manager implements ports.ContextStore over a HistoryStore with an LRU cache
// of recently active conversations.
type Manager struct {
	store   ports.HistoryStore
	counter tokens.Counter
	cache   *lru.Cache[string, []domain.ChatMessage]
	logger  *slog.Logger

	mu   sync.Mutex
	opts Options
}

var _ ports.ContextStore = (*Manager)(nil)

// NewManager creates a manager. counter may be nil to use the estimator.
func NewManager(store ports.HistoryStore, counter tokens.Counter, opts Options, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if counter == nil {
		counter = tokens.NewEstimator()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyFIFO
	}

	cache, err := lru.New[string, []domain.ChatMessage](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create history cache: %w", err)
	}

	return &Manager{
		store:   store,
		counter: counter,
		cache:   cache,
		logger:  logger,
		opts:    opts,
	}, nil
}

// SetOptions swaps the compression settings, e.g. after a config reload.
// The cache size is fixed at construction.
func (m *Manager) SetOptions(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts.CacheSize = m.opts.CacheSize
	m.opts = opts
}

func (m *Manager) options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// GetContext returns the compressed history of a conversation, oldest first.
func (m *Manager) GetContext(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	history, err := m.history(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	opts := m.options()
	msgs := compress(opts.Strategy, history, opts.MaxMessages)
	if opts.Strategy != StrategyNone {
		msgs = m.capTokens(ctx, opts, msgs)
	}
	return msgs, nil
}

// AddMessage appends one turn.
func (m *Manager) AddMessage(ctx context.Context, conversationID string, role domain.Role, content string) error {
	rec := &ports.HistoryRecord{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := m.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if cached, ok := m.cache.Get(conversationID); ok {
		next := append(slices.Clone(cached), rec.ChatMessage())
		if len(next) > historyWindow {
			next = next[len(next)-historyWindow:]
		}
		m.cache.Add(conversationID, next)
	}
	return nil
}

// Clear forgets a conversation.
func (m *Manager) Clear(ctx context.Context, conversationID string) error {
	m.cache.Remove(conversationID)
	return m.store.Clear(ctx, conversationID)
}

// Sessions lists the conversations currently cached, most recent last.
func (m *Manager) Sessions() []string {
	return m.cache.Keys()
}

// Prune deletes turns older than retention and drops the cache.
func (m *Manager) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	removed, err := m.store.PruneBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.cache.Purge()
	}
	return removed, nil
}

func (m *Manager) history(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	if cached, ok := m.cache.Get(conversationID); ok {
		return slices.Clone(cached), nil
	}

	records, err := m.store.List(ctx, conversationID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	msgs := make([]domain.ChatMessage, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, rec.ChatMessage())
	}
	m.cache.Add(conversationID, msgs)
	return slices.Clone(msgs), nil
}

// capTokens drops the oldest turns while the context exceeds MaxTokens and
// more than two turns remain.
func (m *Manager) capTokens(ctx context.Context, opts Options, msgs []domain.ChatMessage) []domain.ChatMessage {
	if opts.MaxTokens <= 0 {
		return msgs
	}
	for len(msgs) > 2 {
		n, err := m.counter.CountTokens(ctx, opts.Model, msgs)
		if err != nil {
			m.logger.Warn("token count failed", slog.String("error", err.Error()))
			return msgs
		}
		if n <= opts.MaxTokens {
			break
		}
		msgs = dropOldest(msgs, 1)
		if onlySystemLeft(msgs) {
			break
		}
	}
	return msgs
}

func onlySystemLeft(msgs []domain.ChatMessage) bool {
	for _, m := range msgs {
		if m.Role != domain.RoleSystem {
			return false
		}
	}
	return true
}
