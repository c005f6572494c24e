// Package bus queues inbound events between platform adapters and the
// runtime's sequential event loop.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// DefaultCapacity is the inbound buffer size used when none is given.
const DefaultCapacity = 100

// EventBus is a bounded inbound queue. When full, the oldest queued event is
// dropped so a stalled loop never blocks the platform readers.
type EventBus struct {
	inbound chan *domain.Event
	logger  *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64
}

// New creates a bus with the given capacity (<= 0 uses DefaultCapacity).
func New(capacity int, logger *slog.Logger) *EventBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		inbound: make(chan *domain.Event, capacity),
		logger:  logger,
	}
}

// Publish enqueues ev. It fails with ErrClosed after Close.
func (b *EventBus) Publish(ctx context.Context, ev *domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.inbound <- ev:
		return nil
	default:
	}

	// Channel full: drop oldest and retry
	select {
	case old := <-b.inbound:
		b.dropped.Add(1)
		b.logger.Warn("event bus full, dropping oldest event",
			slog.String("event_id", old.ID),
			slog.String("session_id", old.SessionID()),
		)
	default:
	}
	select {
	case b.inbound <- ev:
	default:
		b.dropped.Add(1)
	}
	return nil
}

// Consume blocks until an event is available, ctx is done or the bus is
// closed and drained.
func (b *EventBus) Consume(ctx context.Context) (*domain.Event, bool) {
	select {
	case ev, ok := <-b.inbound:
		return ev, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports queued events.
func (b *EventBus) Len() int {
	return len(b.inbound)
}

// Dropped reports how many events were discarded because the queue was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops intake. Queued events can still be consumed.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.inbound)
		b.mu.Unlock()
	})
}

var _ ports.EventSink = (*EventBus)(nil)
