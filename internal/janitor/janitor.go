// Package janitor runs periodic housekeeping on a cron schedule: idle rate
// limiter buckets and old conversation turns are pruned.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
)

// Task is one housekeeping job. Run returns how many items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Option configures the Janitor.
type Option func(*Janitor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// Janitor runs its tasks whenever the cron schedule is due.
type Janitor struct {
	schedule string
	tasks    []Task
	logger   *slog.Logger
	now      func() time.Time
}

// New validates schedule (standard five-field cron) and returns a janitor.
func New(schedule string, tasks []Task, opts ...Option) (*Janitor, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("invalid janitor schedule %q", schedule))
	}
	j := &Janitor{
		schedule: schedule,
		tasks:    tasks,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	return j, nil
}

// Next returns the first tick strictly after t.
func (j *Janitor) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(j.schedule, t, false)
}

// Run sleeps until each tick and runs the tasks, until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Info("janitor started", slog.String("schedule", j.schedule), slog.Int("tasks", len(j.tasks)))
	for {
		next, err := j.Next(j.now())
		if err != nil {
			return fmt.Errorf("janitor schedule: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("janitor stopped")
			return nil
		case <-timer.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once. Failures are logged; the remaining tasks
// still run.
func (j *Janitor) RunOnce(ctx context.Context) map[string]int64 {
	results := make(map[string]int64, len(j.tasks))
	for _, task := range j.tasks {
		start := j.now()
		removed, err := task.Run(ctx)
		if err != nil {
			j.logger.Error("janitor task failed",
				slog.String("task", task.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		results[task.Name] = removed
		j.logger.Debug("janitor task finished",
			slog.String("task", task.Name),
			slog.Int64("removed", removed),
			slog.Duration("duration", j.now().Sub(start)),
		)
	}
	return results
}
