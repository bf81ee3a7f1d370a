// Package llm adapts language model backends to the two calls a research
// run needs: free-form report generation and plan proposal.
package llm

import (
	"context"
	"fmt"

	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/pkg/config"
)

// Provider generates text and proposes research plans.
type Provider interface {
	engine.Generator
	// ProposePlan asks the model for a plan document ({"steps": [...]})
	// answering query under the planner instructions. The raw document is
	// returned; parsing and fallback are the caller's concern.
	ProposePlan(ctx context.Context, instructions, query string) (string, error)
}

// New builds the provider registered under name.
func New(ctx context.Context, name string, cfg config.ProviderConfig, logger *observability.Logger) (Provider, error) {
	switch name {
	case "openai", "openrouter":
		return NewOpenAI(cfg, logger)
	case "gemini":
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: openai, openrouter, gemini)", name)
	}
}

const planToolName = "propose_plan"

const planToolDescription = "Propose the ordered research plan. Each step has a unique id (step_1, step_2, ...), " +
	"an action, and an input that is either a literal string, a reference to an earlier step's output " +
	"(for example step_1.urls[0].link) or a list of such references."

// planToolParameters is the JSON schema of the propose_plan arguments.
func planToolParameters() map[string]any {
	actions := make([]string, len(engine.Actions))
	for i, a := range engine.Actions {
		actions[i] = string(a)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":     map[string]any{"type": "string"},
						"action": map[string]any{"type": "string", "enum": actions},
						"input": map[string]any{
							"description": "literal string, step reference, or list of step references",
						},
					},
					"required": []string{"id", "action", "input"},
				},
			},
		},
		"required": []string{"steps"},
	}
}

func logExchange(ctx context.Context, logger *observability.Logger, prompt any, response string, toolCalls any) {
	if logger == nil {
		return
	}
	chatID, runID := observability.RunFrom(ctx)
	logger.LogLLM(chatID, runID, prompt, response, toolCalls)
}
