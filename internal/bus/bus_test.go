package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

func newEvent(text string) *domain.Event {
	return domain.NewMessageEvent("test", domain.SubtypePrivate, "u1", "", text)
}

func TestEventBus_PublishConsume(t *testing.T) {
	b := New(4, nil)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		if err := b.Publish(ctx, newEvent(text)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		ev, ok := b.Consume(ctx)
		if !ok {
			t.Fatal("Consume() returned !ok")
		}
		if ev.PlainText() != want {
			t.Errorf("got %q, want %q", ev.PlainText(), want)
		}
	}
}

func TestEventBus_DropsOldestWhenFull(t *testing.T) {
	b := New(2, nil)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		_ = b.Publish(ctx, newEvent(text))
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}

	ev, _ := b.Consume(ctx)
	if ev.PlainText() != "b" {
		t.Errorf("expected oldest to be dropped, got %q first", ev.PlainText())
	}
}

func TestEventBus_ConsumeHonorsContext(t *testing.T) {
	b := New(1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, ok := b.Consume(ctx); ok {
		t.Error("expected Consume to give up when ctx is done")
	}
}

func TestEventBus_Close(t *testing.T) {
	b := New(2, nil)
	ctx := context.Background()
	_ = b.Publish(ctx, newEvent("queued"))

	b.Close()
	b.Close()

	if err := b.Publish(ctx, newEvent("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}

	ev, ok := b.Consume(ctx)
	if !ok || ev.PlainText() != "queued" {
		t.Errorf("expected queued event to drain after Close")
	}
	if _, ok := b.Consume(ctx); ok {
		t.Error("expected closed and drained bus to report !ok")
	}
}
