package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/pkg/config"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when the provider config names no model.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini talks to the Gemini API through the Google GenAI SDK. Plans are
// requested in JSON response mode.
type Gemini struct {
	client *genai.Client
	model  string
	logger *observability.Logger
}

// NewGemini creates a client for cfg. BaseURL overrides the API endpoint.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, logger *observability.Logger) (*Gemini, error) {
	return newGemini(ctx, cfg, nil, logger)
}

func newGemini(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client, logger *observability.Logger) (*Gemini, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	out := resp.Text()
	logExchange(ctx, g.logger, prompt, out, nil)
	return out, nil
}

func (g *Gemini) ProposePlan(ctx context.Context, instructions, query string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(query), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini plan: %w", err)
	}
	out := resp.Text()
	logExchange(ctx, g.logger, map[string]string{"system": instructions, "query": query}, out, nil)
	return out, nil
}
