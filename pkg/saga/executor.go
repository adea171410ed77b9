package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/retailcore/salesaga/pkg/logger"
)

// Executor runs saga steps in order and compensations in reverse on failure.
// Steps never retry and no state is re-entered.
type Executor struct {
	log        *logger.Logger
	tracer     trace.Tracer
	onCritical func(compensation string, err error)
}

// NewExecutor creates an executor. tracer may be nil to disable spans;
// onCritical may be nil when no escalation hook is wired.
func NewExecutor(log *logger.Logger, tracer trace.Tracer, onCritical func(string, error)) *Executor {
	return &Executor{log: log, tracer: tracer, onCritical: onCritical}
}

// Run executes steps sequentially. The first step error stops the run,
// triggers compensation of everything registered so far, and is returned
// unchanged so the caller can classify it. The returned Run reports the
// terminal state, the failed step, and any critical compensation failures.
func (e *Executor) Run(ctx context.Context, name string, steps []Step) (*Run, error) {
	run := newRun(name)
	run.state = StateRunning

	for _, step := range steps {
		if err := e.executeStep(ctx, run, step); err != nil {
			run.failedStep = step.Name
			e.compensate(ctx, run)
			run.state = StateFailed
			return run, err
		}
	}

	run.state = StateCompleted
	return run, nil
}

func (e *Executor) executeStep(ctx context.Context, run *Run, step Step) error {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "saga."+step.Name,
			trace.WithAttributes(attribute.String("saga.name", run.Name)))
		defer span.End()

		if err := step.Execute(ctx, run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			return err
		}
		return nil
	}
	return step.Execute(ctx, run)
}

func (e *Executor) compensate(ctx context.Context, run *Run) {
	run.state = StateCompensating

	for i := len(run.compensations) - 1; i >= 0; i-- {
		comp := run.compensations[i]
		if err := e.runCompensation(ctx, run, comp); err != nil {
			if comp.Critical {
				run.criticalErrs = append(run.criticalErrs, err)
				if e.onCritical != nil {
					e.onCritical(comp.Name, err)
				}
				e.log.WithError(err).Errorf("critical compensation failed, manual reconciliation required", map[string]interface{}{
					"saga":         run.Name,
					"compensation": comp.Name,
				})
				continue
			}
			// Best-effort undo: log and keep compensating.
			e.log.WithError(err).Warnf("compensation failed", map[string]interface{}{
				"saga":         run.Name,
				"compensation": comp.Name,
			})
		}
	}
}

func (e *Executor) runCompensation(ctx context.Context, run *Run, comp Compensation) error {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "saga.compensation."+comp.Name,
			trace.WithAttributes(attribute.String("saga.name", run.Name)))
		defer span.End()

		if err := comp.Run(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compensation failed")
			return err
		}
		return nil
	}
	return comp.Run(ctx)
}
