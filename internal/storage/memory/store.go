package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// Store is an in-memory implementation of ports.HistoryStore
type Store struct {
	mu            sync.RWMutex
	conversations map[string][]*ports.HistoryRecord
}

var _ ports.HistoryStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		conversations: make(map[string][]*ports.HistoryRecord),
	}
}

func (s *Store) Append(ctx context.Context, rec *ports.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = "msg_" + uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	stored := *rec
	s.conversations[rec.ConversationID] = append(s.conversations[rec.ConversationID], &stored)
	return nil
}

func (s *Store) List(ctx context.Context, conversationID string, limit int) ([]*ports.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.conversations[conversationID]
	start := 0
	if limit > 0 && len(records) > limit {
		start = len(records) - limit
	}

	result := make([]*ports.HistoryRecord, 0, len(records)-start)
	for _, rec := range records[start:] {
		c := *rec
		result = append(result, &c)
	}
	return result, nil
}

func (s *Store) Clear(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, conversationID)
	return nil
}

func (s *Store) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, records := range s.conversations {
		kept := records[:0]
		for _, rec := range records {
			if rec.CreatedAt.Before(t) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.conversations, id)
			continue
		}
		s.conversations[id] = kept
	}
	return removed, nil
}

func (s *Store) Close() error {
	return nil
}
