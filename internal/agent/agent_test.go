package agent

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/llm"
	"github.com/rahul/delver/internal/store"
	"github.com/rahul/delver/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

const scenarioPlan = `{"steps": [
	{"id": "step_1", "action": "search", "input": "rust vs go"},
	{"id": "step_2", "action": "scrape", "input": "step_1.urls[0]"},
	{"id": "step_3", "action": "finish", "input": "step_2.content"}
]}`

type searchFunc func(ctx context.Context, query string) ([]engine.SearchResult, error)

func (f searchFunc) Search(ctx context.Context, query string) ([]engine.SearchResult, error) {
	return f(ctx, query)
}

type scrapeFunc func(ctx context.Context, url string) (string, error)

func (f scrapeFunc) Scrape(ctx context.Context, url string) (string, error) { return f(ctx, url) }

type generateFunc func(ctx context.Context, prompt string) (string, error)

func (f generateFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type recordingProposer struct {
	raw          string
	err          error
	instructions string
}

func (p *recordingProposer) ProposePlan(_ context.Context, instructions, _ string) (string, error) {
	p.instructions = instructions
	return p.raw, p.err
}

func testRegistry() *tools.Registry {
	return tools.DefaultRegistry(tools.NewSerperTool("key", 3), tools.NewScraperTool(time.Second))
}

func newTestPlanner(p PlanProposer) *Planner {
	return NewPlanner(p, NewPromptManager(""), testRegistry(), nil)
}

func TestPlannerParsesFencedPlan(t *testing.T) {
	proposer := &recordingProposer{raw: "```json\n" + scenarioPlan + "\n```"}
	plan, fallback := newTestPlanner(proposer).Plan(context.Background(), "rust vs go")

	assert.False(t, fallback)
	require.Len(t, plan, 3)
	assert.Equal(t, engine.ActionScrape, plan[1].Action)
	assert.Equal(t, engine.InputReference, plan[1].Input.Kind)

	assert.Contains(t, proposer.instructions, "## Available Tools:")
	for _, a := range []string{"`search`", "`scrape`", "`summarize`", "`finish`"} {
		assert.Contains(t, proposer.instructions, a)
	}
}

func TestPlannerAcceptsBareStepList(t *testing.T) {
	proposer := &recordingProposer{raw: `[{"id": "step_1", "action": "search", "input": "go generics"}]`}
	plan, fallback := newTestPlanner(proposer).Plan(context.Background(), "go generics")
	assert.False(t, fallback)
	require.Len(t, plan, 1)
	assert.Equal(t, "go generics", plan[0].Input.Literal)
}

func TestPlannerFallsBack(t *testing.T) {
	cases := map[string]*recordingProposer{
		"provider error": {err: errors.New("rate limited")},
		"not json":       {raw: "I think you should search the web."},
		"unknown action": {raw: `{"steps":[{"id":"step_1","action":"browse","input":"x"}]}`},
		"empty plan":     {raw: `{"steps":[]}`},
		"duplicate id":   {raw: `{"steps":[{"id":"step_1","action":"search","input":"a"},{"id":"step_1","action":"search","input":"b"}]}`},
	}
	for name, proposer := range cases {
		t.Run(name, func(t *testing.T) {
			plan, fallback := newTestPlanner(proposer).Plan(context.Background(), "what is go")
			assert.True(t, fallback)
			require.Len(t, plan, 1)
			assert.Equal(t, "step_1", plan[0].ID)
			assert.Equal(t, engine.ActionSearch, plan[0].Action)
			assert.Equal(t, "what is go", plan[0].Input.Literal)
		})
	}
}

func TestPlannerWithLangChainModel(t *testing.T) {
	model := llm.NewLangChain(fake.NewFakeLLM([]string{scenarioPlan}), nil)
	plan, fallback := newTestPlanner(model).Plan(context.Background(), "rust vs go")
	assert.False(t, fallback)
	assert.Len(t, plan, 3)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("  {\"a\":1}  "))
}

func scenarioResearcher(t *testing.T, scrape scrapeFunc, runs RunStore) *Researcher {
	t.Helper()
	search := searchFunc(func(context.Context, string) ([]engine.SearchResult, error) {
		return []engine.SearchResult{{Title: "A", Link: "http://x"}}, nil
	})
	gen := generateFunc(func(context.Context, string) (string, error) { return "report", nil })
	eng := engine.New(engine.NewDispatcher(search, scrape, gen))
	planner := newTestPlanner(&recordingProposer{raw: scenarioPlan})
	var opts []ResearcherOption
	if runs != nil {
		opts = append(opts, WithRunStore(runs))
	}
	return NewResearcher(planner, eng, opts...)
}

func TestResearcherEndToEnd(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()

	r := scenarioResearcher(t, func(_ context.Context, url string) (string, error) {
		if url == "http://x" {
			return "body text", nil
		}
		return "", errors.New("unexpected url")
	}, db)

	var events []engine.Event
	result, err := r.Research(context.Background(), "chat-1", "rust vs go", func(e engine.Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	assert.Equal(t, "body text", result.FinalAnswer)
	assert.Equal(t, []string{"http://x"}, result.SourcesUsed)
	assert.Equal(t, []string{"rust vs go"}, result.SubQueries)

	require.Len(t, events, 4)
	for _, e := range events[:3] {
		assert.Equal(t, engine.EventStatus, e.Kind)
	}
	assert.Equal(t, "step_2", events[1].StepID)
	assert.Equal(t, engine.EventResult, events[3].Kind)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[3].Data), &record))
	assert.Equal(t, "body text", record["final_answer"])

	runs, err := db.ListRuns(context.Background(), "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "rust vs go", runs[0].Query)
	assert.Equal(t, "body text", runs[0].FinalAnswer)
	assert.JSONEq(t, events[3].Data, string(runs[0].Record))
}

func TestResearcherScrapeFailure(t *testing.T) {
	r := scenarioResearcher(t, func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	}, nil)

	result, err := r.Research(context.Background(), "", "rust vs go", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.FinalAnswer, engine.ScrapeFailedPrefix))
	assert.Empty(t, result.SourcesUsed)
}

func TestResearcherCancelled(t *testing.T) {
	r := scenarioResearcher(t, func(context.Context, string) (string, error) { return "x", nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var last engine.Event
	_, err := r.Research(ctx, "", "rust vs go", func(e engine.Event) { last = e })
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, engine.EventError, last.Kind)
}

type stubRunner struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (r *stubRunner) Research(_ context.Context, chatID, query string, _ engine.Reporter) (engine.ResearchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, chatID+":"+query)
	if r.err != nil {
		return engine.ResearchResult{}, r.err
	}
	return engine.ResearchResult{OriginalQuery: query, FinalAnswer: "answer to " + query, SourcesUsed: []string{"http://x"}}, nil
}

type inbox struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (m *inbox) Send(chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string][]string)
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

func TestNextRun(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	next, err := NextRun("0 9 * * *", base)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), next)

	next, err = NextRun("@every 1h", base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), next)

	_, err = NextRun("every tuesday", base)
	assert.Error(t, err)
}

func TestSchedulerRunsDueTasks(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	defer db.Close()

	runner := &stubRunner{}
	box := &inbox{}
	s := NewScheduler(runner, db, box)
	clock := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ctx := context.Background()
	task, err := s.Schedule(ctx, "42", "0 9 * * *", "ai news")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), task.NextRun)

	_, err = s.Schedule(ctx, "42", "not a cron", "x")
	assert.Error(t, err)
	_, err = s.Schedule(ctx, "42", "0 9 * * *", "   ")
	assert.Error(t, err)

	s.pollAndExecute(ctx)
	assert.Empty(t, runner.queries, "task is not due yet")

	clock = time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)
	s.pollAndExecute(ctx)
	assert.Equal(t, []string{"42:ai news"}, runner.queries)
	require.Len(t, box.sent["42"], 1)
	assert.Contains(t, box.sent["42"][0], "answer to ai news")
	assert.Contains(t, box.sent["42"][0], "http://x")

	s.pollAndExecute(ctx)
	assert.Len(t, runner.queries, 1, "schedule advanced to the next day")

	tasks, err := s.Tasks(ctx, "42")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), tasks[0].NextRun)

	require.NoError(t, s.Unschedule(ctx, "42", task.ID))
	tasks, err = s.Tasks(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSchedulerFailedRunIsNotDelivered(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	defer db.Close()

	runner := &stubRunner{err: errors.New("no provider")}
	box := &inbox{}
	s := NewScheduler(runner, db, box)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	ctx := context.Background()
	_, err = s.Schedule(ctx, "7", "@hourly", "go news")
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "8"))

	clock = clock.Add(time.Hour)
	s.pollAndExecute(ctx)
	assert.Len(t, runner.queries, 1)
	assert.Empty(t, box.sent)
}

func TestFormatResult(t *testing.T) {
	out := FormatResult(engine.ResearchResult{OriginalQuery: "q", FinalAnswer: "a"})
	assert.Equal(t, "*q*\n\na", out)
	out = FormatResult(engine.ResearchResult{OriginalQuery: "q", FinalAnswer: "a", SourcesUsed: []string{"u1", "u2"}})
	assert.Equal(t, "*q*\n\na\n\nSources:\n- u1\n- u2", out)
}
