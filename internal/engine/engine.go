package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxTicks is the tick ceiling a new Engine starts with. Zero means
// the plan length is the only bound, so an N-step plan runs exactly N ticks.
const DefaultMaxTicks = 0

// EventKind classifies progress events.
type EventKind string

const (
	EventStatus EventKind = "status"
	EventResult EventKind = "result"
	EventError  EventKind = "error"
)

// Event is a progress notification published between ticks.
type Event struct {
	Kind   EventKind `json:"type"`
	Data   string    `json:"data"`
	StepID string    `json:"step_id,omitempty"`
	Action Action    `json:"action,omitempty"`
	Status Status    `json:"status,omitempty"`
}

// Reporter receives progress events. It is called synchronously from the
// goroutine running the loop.
type Reporter func(Event)

// Progress describes what a single tick did.
type Progress struct {
	Step     Step
	Output   StepOutput
	Executed bool
	Finished bool
}

// Engine drives a RunState through its plan one step at a time.
type Engine struct {
	dispatcher *Dispatcher
	maxTicks   int
	logger     *zap.Logger
	tel        *telemetry
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxTicks bounds how many steps one run may execute. Zero or less
// leaves the plan length as the only bound.
func WithMaxTicks(n int) Option {
	return func(e *Engine) {
		e.maxTicks = n
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New returns an engine that dispatches steps through d.
func New(d *Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		dispatcher: d,
		maxTicks:   DefaultMaxTicks,
		logger:     zap.NewNop(),
		tel:        newTelemetry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tick executes the step under the cursor. Calling Tick on a finished run
// does nothing. The returned error is only non-nil when the step output
// could not be recorded, which means the plan reuses a step id.
func (e *Engine) Tick(ctx context.Context, st *RunState) (Progress, error) {
	step, ok := st.current()
	if !ok {
		if !st.Finished() {
			st.finish()
		}
		return Progress{Finished: true}, nil
	}

	ctx, span := e.tel.startSpan(ctx, "engine.tick", trace.SpanKindInternal,
		AttrRunID.String(st.ID()), AttrStepID.String(step.ID), AttrAction.String(string(step.Action)))
	defer span.End()

	in := ResolveInput(step, st.Results())
	out, ctrl := e.dispatcher.Dispatch(ctx, step, in, st)
	if err := st.record(step.ID, out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		st.finish()
		return Progress{Step: step, Finished: true}, err
	}
	e.tel.countStep(ctx, step.Action, out.Status)
	span.SetAttributes(AttrStatus.String(string(out.Status)))

	e.logger.Debug("step executed",
		zap.String("run_id", st.ID()),
		zap.String("step", step.ID),
		zap.String("action", string(step.Action)),
		zap.String("status", string(out.Status)),
		zap.String("reason", out.Reason),
	)

	if ctrl.Terminate {
		st.terminate(ctrl.FinalAnswer)
		return Progress{Step: step, Output: out, Executed: true, Finished: true}, nil
	}

	st.advance()
	switch {
	case st.Cursor() >= len(st.Plan()):
		st.finish()
	case e.maxTicks > 0 && st.Ticks() >= e.maxTicks:
		e.logger.Warn("run reached tick ceiling",
			zap.String("run_id", st.ID()), zap.Int("max_ticks", e.maxTicks), zap.Int("plan_len", len(st.Plan())))
		st.finish()
	}
	return Progress{Step: step, Output: out, Executed: true, Finished: st.Finished()}, nil
}

// Run ticks st until it finishes, reporting a status event after every
// executed step. Cancelling ctx stops the loop between ticks.
func (e *Engine) Run(ctx context.Context, st *RunState, report Reporter) error {
	if report == nil {
		report = func(Event) {}
	}
	ctx, span := e.tel.startSpan(ctx, "engine.run", trace.SpanKindInternal, AttrRunID.String(st.ID()))
	defer span.End()

	for !st.Finished() {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("run %s interrupted at step %d: %w", st.ID(), st.Cursor(), err)
		}
		p, err := e.Tick(ctx, st)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if p.Executed {
			report(Event{
				Kind:   EventStatus,
				Data:   statusLine(p),
				StepID: p.Step.ID,
				Action: p.Step.Action,
				Status: p.Output.Status,
			})
		}
	}
	return nil
}

func statusLine(p Progress) string {
	switch p.Output.Status {
	case StatusOK:
		return fmt.Sprintf("Executing step: %s (%s)", p.Step.ID, p.Step.Action)
	default:
		return fmt.Sprintf("Executing step: %s (%s) - %s", p.Step.ID, p.Step.Action, p.Output.Status)
	}
}
