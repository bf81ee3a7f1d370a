package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/internal/tools"
)

// PlanProposer asks a model for a raw plan document.
type PlanProposer interface {
	ProposePlan(ctx context.Context, instructions, query string) (string, error)
}

// Planner turns a query into an executable plan. Any failure to obtain a
// well-formed plan yields the single-search fallback plan.
type Planner struct {
	Proposer PlanProposer
	Prompts  *PromptManager
	Registry *tools.Registry
	logger   *observability.Logger
}

func NewPlanner(proposer PlanProposer, prompts *PromptManager, registry *tools.Registry, logger *observability.Logger) *Planner {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Planner{
		Proposer: proposer,
		Prompts:  prompts,
		Registry: registry,
		logger:   logger,
	}
}

// Plan returns the plan for query and whether it is the fallback plan.
func (p *Planner) Plan(ctx context.Context, query string) (engine.Plan, bool) {
	chatID, runID := observability.RunFrom(ctx)

	plan, err := p.propose(ctx, query)
	fallback := err != nil
	if fallback {
		log.Printf("[Planner] falling back to a single search: %v", err)
		p.logger.LogError(chatID, runID, fmt.Errorf("plan generation: %w", err))
		plan = engine.FallbackPlan(query)
	}

	p.logger.LogPlan(chatID, runID, plan, fallback)
	return plan, fallback
}

func (p *Planner) propose(ctx context.Context, query string) (engine.Plan, error) {
	instructions, err := p.instructions()
	if err != nil {
		return nil, err
	}
	raw, err := p.Proposer.ProposePlan(ctx, instructions, query)
	if err != nil {
		return nil, err
	}
	doc := stripCodeFences(raw)
	if strings.HasPrefix(doc, "[") {
		// JSON-mode models sometimes answer with the bare step list.
		doc = `{"steps": ` + doc + `}`
	}
	return engine.ParsePlan([]byte(doc))
}

// instructions assembles the planner prompt, any persona context and the
// catalogue of available actions.
func (p *Planner) instructions() (string, error) {
	plannerPrompt, err := p.Prompts.GetPlannerPrompt()
	if err != nil {
		return "", fmt.Errorf("failed to load planner prompt: %w", err)
	}

	var b strings.Builder
	b.WriteString(plannerPrompt)

	if extra, err := p.Prompts.GetContextPrompt(); err == nil && extra != "" {
		b.WriteString("\n\n## Context\n")
		b.WriteString(extra)
	}

	if p.Registry != nil {
		b.WriteString("\n\n## Available Tools:\n")
		b.WriteString(p.Registry.Catalogue())
	}
	return b.String(), nil
}

// stripCodeFences removes markdown code fences models like to wrap JSON in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
