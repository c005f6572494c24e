// Package tasks tracks detached work spawned while handling events, such as
// generating an LLM reply, so it can be bounded and drained on shutdown.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

// Func is a unit of detached work. ctx is cancelled when the set shuts down
// past its grace period.
type Func func(ctx context.Context) error

// Options configures a Set.
type Options struct {
	MaxConcurrent int
	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

// Set runs detached tasks. Tasks with the same key run one at a time in the
// order they were submitted; tasks with different keys run concurrently up to
// MaxConcurrent.
type Set struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted
	grace  time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	tails  map[string]chan struct{}

	wg      sync.WaitGroup
	pending atomic.Int64
}

var _ ports.TaskSpawner = (*Set)(nil)

// New creates a task set.
func New(opts Options) *Set {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Set{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		grace:  opts.ShutdownGrace,
		logger: opts.Logger,
		tails:  make(map[string]chan struct{}),
	}
}

// Handle observes one submitted task.
type Handle struct {
	ID   string
	Name string
	Key  string

	done chan struct{}
	err  error
}

// Done is closed when the task finished, failed, or was cancelled before running.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's error once Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Spawn implements ports.TaskSpawner.
func (s *Set) Spawn(name, key string, fn func(ctx context.Context) error) error {
	_, err := s.Submit(name, key, fn)
	return err
}

// Submit schedules fn and returns a handle. An empty key means no ordering.
func (s *Set) Submit(name, key string, fn Func) (*Handle, error) {
	h := &Handle{
		ID:   "task_" + uuid.New().String(),
		Name: name,
		Key:  key,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrTaskSetClosed
	}
	var prev chan struct{}
	if key != "" {
		prev = s.tails[key]
		s.tails[key] = h.done
	}
	s.wg.Add(1)
	s.pending.Add(1)
	s.mu.Unlock()

	go s.run(h, prev, fn)
	return h, nil
}

func (s *Set) run(h *Handle, prev chan struct{}, fn Func) {
	defer s.wg.Done()
	defer s.pending.Add(-1)
	defer close(h.done)
	defer s.releaseTail(h)

	logger := s.logger.With(slog.String("task", h.Name), slog.String("task_id", h.ID))

	if prev != nil {
		select {
		case <-prev:
		case <-s.ctx.Done():
			h.err = s.ctx.Err()
			logger.Warn("task cancelled before start")
			return
		}
	}

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		h.err = err
		logger.Warn("task cancelled before start")
		return
	}
	defer s.sem.Release(1)

	start := time.Now()
	h.err = s.invoke(fn)
	if h.err != nil {
		logger.Error("task failed",
			slog.String("key", h.Key),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", h.err.Error()),
		)
		return
	}
	logger.Debug("task completed", slog.String("key", h.Key), slog.Duration("duration", time.Since(start)))
}

func (s *Set) invoke(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
			s.logger.Error("task panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	return fn(s.ctx)
}

func (s *Set) releaseTail(h *Handle) {
	if h.Key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tails[h.Key] == h.done {
		delete(s.tails, h.Key)
	}
}

// Len returns the number of tasks queued or running.
func (s *Set) Len() int {
	return int(s.pending.Load())
}

// Shutdown stops accepting tasks and waits for outstanding ones. After the
// grace period, or when ctx is done, the remaining tasks are cancelled.
func (s *Set) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	remaining := s.Len()
	s.logger.Warn("cancelling outstanding tasks", slog.Int("count", remaining))
	s.cancel()

	select {
	case <-done:
		return fmt.Errorf("cancelled %d outstanding tasks", remaining)
	case <-ctx.Done():
		return ctx.Err()
	}
}
