package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain drives any langchaingo model. Plans are requested through a
// propose_plan tool call.
type LangChain struct {
	Model  llms.Model
	logger *observability.Logger
}

func NewLangChain(model llms.Model, logger *observability.Logger) *LangChain {
	return &LangChain{Model: model, logger: logger}
}

// NewOpenAI connects to OpenAI or any OpenAI-compatible endpoint such as
// OpenRouter when BaseURL is set.
func NewOpenAI(cfg config.ProviderConfig, logger *observability.Logger) (*LangChain, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	return NewLangChain(model, logger), nil
}

func (l *LangChain) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, l.Model, prompt)
	if err != nil {
		return "", err
	}
	logExchange(ctx, l.logger, prompt, out, nil)
	return out, nil
}

func (l *LangChain) ProposePlan(ctx context.Context, instructions, query string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(instructions)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(query)},
		},
	}

	planTool := llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        planToolName,
			Description: planToolDescription,
			Parameters:  planToolParameters(),
		},
	}

	resp, err := l.Model.GenerateContent(ctx, messages, llms.WithTools([]llms.Tool{planTool}))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from model")
	}

	choice := resp.Choices[0]
	logExchange(ctx, l.logger, messages, choice.Content, choice.ToolCalls)

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall != nil && tc.FunctionCall.Name == planToolName {
			return tc.FunctionCall.Arguments, nil
		}
	}
	// Models without tool support answer in plain text; the planner strips
	// any code fences.
	return choice.Content, nil
}
