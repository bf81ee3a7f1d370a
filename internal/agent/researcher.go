package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/internal/store"
)

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, r store.Run) error
}

// Researcher runs a query end to end: plan, execute, project, persist.
// It is safe for concurrent use; every call owns its own run state.
type Researcher struct {
	planner *Planner
	engine  *engine.Engine
	runs    RunStore
	logger  *observability.Logger
}

type ResearcherOption func(*Researcher)

// WithRunStore persists every finished run.
func WithRunStore(s RunStore) ResearcherOption {
	return func(r *Researcher) {
		r.runs = s
	}
}

// WithEventLogger sets the structured event logger.
func WithEventLogger(l *observability.Logger) ResearcherOption {
	return func(r *Researcher) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewResearcher(planner *Planner, eng *engine.Engine, opts ...ResearcherOption) *Researcher {
	r := &Researcher{
		planner: planner,
		engine:  eng,
		logger:  observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan only generates the plan for query.
func (r *Researcher) Plan(ctx context.Context, query string) (engine.Plan, bool) {
	return r.planner.Plan(ctx, query)
}

// Research answers query. Progress is published to report (which may be
// nil) after every step, followed by a result event, or an error event if
// the run was interrupted.
func (r *Researcher) Research(ctx context.Context, chatID, query string, report engine.Reporter) (engine.ResearchResult, error) {
	if report == nil {
		report = func(engine.Event) {}
	}
	runID := uuid.NewString()
	ctx = observability.WithRun(ctx, chatID, runID)

	observability.RunStarted()
	defer observability.RunFinished()

	observability.SetStatus(observability.PhasePlanner, query)
	plan, _ := r.planner.Plan(ctx, query)

	observability.SetStatus(observability.PhaseExecutor, query)
	st := engine.NewRunState(runID, query, plan)

	err := r.engine.Run(ctx, st, func(e engine.Event) {
		reason := ""
		if out, ok := st.Output(e.StepID); ok {
			reason = out.Reason
		}
		r.logger.LogStep(chatID, runID, e.StepID, string(e.Action), string(e.Status), reason)
		observability.StepExecuted()
		report(e)
	})
	if err != nil {
		r.logger.LogError(chatID, runID, err)
		report(engine.Event{Kind: engine.EventError, Data: err.Error()})
		return engine.ResearchResult{}, err
	}

	result := engine.Project(st)
	data, err := result.MarshalIndent()
	if err != nil {
		return result, fmt.Errorf("encode result: %w", err)
	}

	if r.runs != nil {
		rec := store.Run{
			ID:          runID,
			ChatID:      chatID,
			Query:       query,
			FinalAnswer: result.FinalAnswer,
			Record:      data,
		}
		// A storage failure does not lose the answer the caller is waiting for.
		if err := r.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.LogError(chatID, runID, fmt.Errorf("save run: %w", err))
		}
	}

	r.logger.LogResult(chatID, runID, result)
	report(engine.Event{Kind: engine.EventResult, Data: string(data)})
	return result, nil
}
