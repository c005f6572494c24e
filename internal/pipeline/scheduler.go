package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-gateway/internal/core/ports"
)

const tracerName = "github.com/tjfontaine/polyglot-chat-gateway/internal/pipeline"

// Scheduler drives events through an ordered list of stages.
type Scheduler struct {
	stages []ports.Stage
	pctx   *ports.PipelineContext
	tracer trace.Tracer

	initOnce sync.Once
}

// NewScheduler creates a scheduler over stages, in order.
func NewScheduler(stages []ports.Stage, pctx *ports.PipelineContext) *Scheduler {
	if pctx == nil {
		pctx = &ports.PipelineContext{}
	}
	return &Scheduler{
		stages: stages,
		pctx:   pctx,
		tracer: otel.Tracer(tracerName),
	}
}

// StageNames returns the stage names in execution order.
func (s *Scheduler) StageNames() []string {
	names := make([]string, len(s.stages))
	for i, st := range s.stages {
		names[i] = st.Name()
	}
	return names
}

// Context returns the shared pipeline context.
func (s *Scheduler) Context() *ports.PipelineContext {
	return s.pctx
}

// Execute runs one event through the chain. It never fails: stage faults are
// logged and the worst outcome is that the event gets no reply.
func (s *Scheduler) Execute(ctx context.Context, ev *domain.Event) {
	s.initOnce.Do(func() { s.initialize(ctx) })

	ev.EnsureStopper()

	ctx, span := s.tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.session", ev.SessionID()),
		attribute.String("event.platform", ev.PlatformID),
	))
	defer span.End()

	s.processStages(ctx, ev, 0)

	if ev.IsStopped() {
		span.SetAttributes(attribute.String("pipeline.stop_reason", ev.StopReason()))
	}
}

func (s *Scheduler) initialize(ctx context.Context) {
	logger := s.pctx.Log()
	for _, stage := range s.stages {
		if err := s.initStage(ctx, stage); err != nil {
			logger.Warn("stage initialization failed",
				slog.String("stage", stage.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	logger.Debug("pipeline initialized", slog.Int("stages", len(s.stages)))
}

func (s *Scheduler) initStage(ctx context.Context, stage ports.Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Initialize(ctx, s.pctx)
}

// processStages runs stages from index from onward. A suspending stage hands
// the rest of the chain to a recursive call and resumes with its post-phase
// once that call returns, so later stages are never driven twice.
func (s *Scheduler) processStages(ctx context.Context, ev *domain.Event, from int) {
	for i := from; i < len(s.stages); i++ {
		if ev.IsStopped() {
			return
		}

		stage := s.stages[i]
		outcome := s.runStage(ctx, stage, ev)
		if !outcome.Suspended() {
			continue
		}

		s.processStages(ctx, ev, i+1)
		s.runPost(ctx, stage, ev, outcome.Post())
		return
	}
}

// runStage calls Process, converting errors and panics into Complete.
func (s *Scheduler) runStage(ctx context.Context, stage ports.Stage, ev *domain.Event) (outcome ports.Outcome) {
	ctx, span := s.tracer.Start(ctx, "stage."+stage.Name())
	defer span.End()

	logger := s.pctx.Log()
	wasStopped := ev.IsStopped()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("stage panic",
				slog.String("stage", stage.Name()),
				slog.String("event_id", ev.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			span.SetStatus(codes.Error, "panic")
			outcome = ports.Complete()
		}
		if !wasStopped && ev.IsStopped() {
			logger.Debug("event stopped",
				slog.String("stage", stage.Name()),
				slog.String("event_id", ev.ID),
				slog.String("reason", ev.StopReason()),
			)
			span.SetAttributes(attribute.String("pipeline.stop_reason", ev.StopReason()))
		}
	}()

	out, err := stage.Process(ctx, s.pctx, ev)
	if err != nil {
		logger.Error("stage failed",
			slog.String("stage", stage.Name()),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ports.Complete()
	}
	span.SetAttributes(attribute.Bool("stage.suspended", out.Suspended()))
	return out
}

func (s *Scheduler) runPost(ctx context.Context, stage ports.Stage, ev *domain.Event, post ports.PostFunc) {
	if post == nil {
		return
	}

	ctx, span := s.tracer.Start(ctx, "stage."+stage.Name()+".post")
	defer span.End()

	logger := s.pctx.Log()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("stage post-phase panic",
				slog.String("stage", stage.Name()),
				slog.String("event_id", ev.ID),
				slog.Any("panic", r),
			)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	if err := post(ctx); err != nil {
		logger.Error("stage post-phase failed",
			slog.String("stage", stage.Name()),
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Ensure Scheduler implements the interface.
var _ ports.PipelineExecutor = (*Scheduler)(nil)
