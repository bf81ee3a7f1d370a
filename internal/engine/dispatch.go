package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rahul/delver/internal/governance"
)

// JoinSeparator separates the values of a multi-reference input.
const JoinSeparator = "\n\n---\n\n"

// Fallback texts recorded when a summarize step cannot produce a report.
const (
	NoContentSummary     = "Error: Could not summarize because no content was found from previous steps."
	GenerationFailedText = "Error: Could not generate a summary from the provided content."
)

// DefaultStepTimeout bounds a single provider call.
const DefaultStepTimeout = 60 * time.Second

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Scraper fetches a page and returns its readable text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Generator completes a prompt with a language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Resolved is a step input after reference lookup.
type Resolved struct {
	Value any
	Found bool
}

// Control tells the loop whether to keep going after a step.
type Control struct {
	Terminate   bool
	FinalAnswer string
}

// Dispatcher runs a single step against the matching provider.
type Dispatcher struct {
	searcher     Searcher
	scraper      Scraper
	generator    Generator
	policy       governance.PolicyEngine
	timeout      time.Duration
	reportPrompt func(content string) string
	logger       *zap.Logger
	tel          *telemetry
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPolicy consults policy before each step is dispatched.
func WithPolicy(policy governance.PolicyEngine) DispatcherOption {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

// WithStepTimeout bounds every provider call. Zero disables the bound.
func WithStepTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// WithReportPrompt replaces the prompt template used by summarize steps.
func WithReportPrompt(fn func(content string) string) DispatcherOption {
	return func(d *Dispatcher) {
		if fn != nil {
			d.reportPrompt = fn
		}
	}
}

// WithDispatchLogger sets the logger used for step diagnostics.
func WithDispatchLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher wires the three providers together.
func NewDispatcher(searcher Searcher, scraper Scraper, generator Generator, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		searcher:     searcher,
		scraper:      scraper,
		generator:    generator,
		timeout:      DefaultStepTimeout,
		reportPrompt: DefaultReportPrompt,
		logger:       zap.NewNop(),
		tel:          newTelemetry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ResolveInput looks up a step's input in the results recorded so far.
//
// A reference list resolves every element, drops those that are missing,
// blank or point at a failed scrape, and joins the rest with JoinSeparator.
// Skipped steps keep their SKIPPED text in the join.
func ResolveInput(step Step, results Results) Resolved {
	switch step.Input.Kind {
	case InputLiteral:
		return Resolved{Value: step.Input.Literal, Found: true}
	case InputReference:
		v, ok := step.Input.Refs[0].Resolve(results)
		return Resolved{Value: v, Found: ok}
	case InputReferences:
		parts := make([]string, 0, len(step.Input.Refs))
		for _, ref := range step.Input.Refs {
			v, ok := ref.Resolve(results)
			if !ok {
				continue
			}
			if f, isFailure := v.(Failure); isFailure && f.Status == StatusFailed {
				continue
			}
			text, _ := textOf(v)
			if strings.TrimSpace(text) == "" {
				continue
			}
			parts = append(parts, text)
		}
		return Resolved{Value: strings.Join(parts, JoinSeparator), Found: true}
	default:
		return Resolved{}
	}
}

// Dispatch executes step with its resolved input. Failures never escape as
// errors: they are recorded in the returned output.
func (d *Dispatcher) Dispatch(ctx context.Context, step Step, in Resolved, st *RunState) (StepOutput, Control) {
	if !in.Found && step.Action != ActionSearch {
		reason := fmt.Sprintf("Could not resolve input %s", step.Input)
		d.logger.Info("skipping step with unresolved input",
			zap.String("run_id", st.ID()), zap.String("step", step.ID), zap.String("input", step.Input.String()))
		return skipped(step.Action, reason), Control{}
	}

	switch step.Action {
	case ActionSearch:
		return d.search(ctx, step, in, st), Control{}
	case ActionScrape:
		return d.scrape(ctx, step, in, st), Control{}
	case ActionSummarize:
		return d.summarize(ctx, step, in, st), Control{}
	case ActionFinish:
		answer, _ := textOf(in.Value)
		return summarized(ActionFinish, answer), Control{Terminate: true, FinalAnswer: answer}
	default:
		return skipped(step.Action, fmt.Sprintf("%v: %q", ErrUnknownAction, step.Action)), Control{}
	}
}

func (d *Dispatcher) search(ctx context.Context, step Step, in Resolved, st *RunState) StepOutput {
	query := st.Query()
	if _, isFailure := in.Value.(Failure); !isFailure {
		if text, ok := textOf(in.Value); ok && strings.TrimSpace(text) != "" {
			query = text
		}
	}
	if denied, reason := d.denied(ctx, st, ActionSearch, query); denied {
		return skipped(ActionSearch, reason)
	}

	var results []SearchResult
	err := d.call(ctx, "search", step, func(ctx context.Context) error {
		var err error
		results, err = d.searcher.Search(ctx, query)
		return err
	})
	if err != nil {
		d.logger.Warn("search failed", zap.String("run_id", st.ID()), zap.String("step", step.ID),
			zap.String("query", query), zap.Error(err))
		results = nil
	}
	return searched(results)
}

func (d *Dispatcher) scrape(ctx context.Context, step Step, in Resolved, st *RunState) StepOutput {
	if f, isFailure := in.Value.(Failure); isFailure {
		return skipped(ActionScrape, fmt.Sprintf("Upstream step did not succeed: %s", f))
	}
	url, isString := in.Value.(string)
	if !isString {
		d.logger.Warn("scrape expects a single URL string",
			zap.String("run_id", st.ID()), zap.String("step", step.ID), zap.String("got", fmt.Sprintf("%T", in.Value)))
		return skipped(ActionScrape, fmt.Sprintf("Scrape expects a single URL string, got %T", in.Value))
	}
	url = strings.TrimSpace(url)
	if denied, reason := d.denied(ctx, st, ActionScrape, url); denied {
		return skipped(ActionScrape, reason)
	}

	var content string
	err := d.call(ctx, "scrape", step, func(ctx context.Context) error {
		var err error
		content, err = d.scraper.Scrape(ctx, url)
		return err
	})
	if err != nil || strings.TrimSpace(content) == "" {
		msg := fmt.Sprintf("Failed to scrape or get content from URL: %s", url)
		d.logger.Warn("scrape failed", zap.String("run_id", st.ID()), zap.String("step", step.ID),
			zap.String("url", url), zap.Error(err))
		return failed(ActionScrape, msg)
	}
	return scraped(content)
}

func (d *Dispatcher) summarize(ctx context.Context, step Step, in Resolved, st *RunState) StepOutput {
	var content string
	if _, isFailure := in.Value.(Failure); !isFailure {
		content, _ = textOf(in.Value)
	}
	if strings.TrimSpace(content) == "" {
		d.logger.Warn("summarizer received no content", zap.String("run_id", st.ID()), zap.String("step", step.ID))
		return summarized(ActionSummarize, NoContentSummary)
	}
	if denied, reason := d.denied(ctx, st, ActionSummarize, ""); denied {
		return skipped(ActionSummarize, reason)
	}

	var summary string
	err := d.call(ctx, "generate", step, func(ctx context.Context) error {
		var err error
		summary, err = d.generator.Generate(ctx, d.reportPrompt(content))
		return err
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		d.logger.Warn("report generation failed", zap.String("run_id", st.ID()), zap.String("step", step.ID), zap.Error(err))
		return summarized(ActionSummarize, GenerationFailedText)
	}
	return summarized(ActionSummarize, summary)
}

// call runs one provider call under the step timeout inside a client span.
func (d *Dispatcher) call(ctx context.Context, provider string, step Step, fn func(context.Context) error) error {
	ctx, span := d.tel.startSpan(ctx, "provider."+provider, trace.SpanKindClient,
		AttrStepID.String(step.ID), AttrProvider.String(provider))
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	d.tel.observeProvider(ctx, provider, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Dispatcher) denied(ctx context.Context, st *RunState, action Action, target string) (bool, string) {
	if d.policy == nil {
		return false, ""
	}
	res, err := d.policy.Evaluate(ctx, governance.Request{Action: string(action), Target: target, RunID: st.ID()})
	if err != nil {
		d.logger.Warn("policy evaluation failed", zap.String("action", string(action)), zap.Error(err))
		return true, fmt.Sprintf("policy: %v", err)
	}
	if res.Effect == governance.EffectDeny {
		d.logger.Info("step denied by policy", zap.String("action", string(action)),
			zap.String("target", target), zap.String("reason", res.Reason))
		return true, "policy: " + res.Reason
	}
	return false, ""
}

// textOf renders a resolved value as text.
func textOf(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case Failure:
		return val.String(), true
	case StepOutput:
		return val.Text(), true
	case []SearchResult:
		return formatSearchResults(val), true
	case SearchResult:
		return val.Link, true
	case fmt.Stringer:
		return val.String(), true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val), true
		}
		return string(data), true
	}
}

// DefaultReportPrompt is the report-writing prompt sent for summarize steps.
func DefaultReportPrompt(content string) string {
	return fmt.Sprintf(reportTemplate, content)
}

const reportTemplate = `You are a professional research analyst. Your task is to produce a comprehensive, detailed, and well-structured research report based on the provided text content. The report should be objective and synthesize information from all provided sources.

**Instructions:**
1.  **Do not invent information.** Base your entire report on the text provided below.
2.  **Structure the report** with the following sections: Executive Summary, Key Findings (in bullet points), Detailed Analysis, and Conclusion.
3.  **Write in a clear, professional tone.**
4.  **Ensure the report is detailed and thorough.**

**Provided Content to Synthesize:**
---
%s
---

**Begin Research Report:**
`
