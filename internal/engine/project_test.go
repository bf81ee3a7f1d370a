package engine

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedRun(t *testing.T) *RunState {
	t.Helper()
	p := &providers{
		hits:   []SearchResult{{Title: "A", Link: "http://a"}, {Title: "B", Link: "http://b"}},
		pages:  map[string]string{"http://a": "alpha", "https://go.dev": "go"},
		report: "final report",
	}
	plan := mustParsePlan(t, `{"steps": [
		{"id": "step_1", "action": "search", "input": "go concurrency"},
		{"id": "step_2", "action": "search", "input": "step_9.summary"},
		{"id": "step_3", "action": "scrape", "input": "step_1.urls[0]"},
		{"id": "step_4", "action": "scrape", "input": "step_1.urls[1]"},
		{"id": "step_5", "action": "scrape", "input": "https://go.dev"},
		{"id": "step_6", "action": "scrape", "input": "step_1.urls[4]"},
		{"id": "step_7", "action": "summarize", "input": ["step_3.content", "step_4.content", "step_5.content"]},
		{"id": "step_8", "action": "finish", "input": "step_7.summary"}
	]}`)
	st := NewRunState("run", "how does go do concurrency", plan)
	require.NoError(t, p.engine().Run(context.Background(), st, nil))
	return st
}

func TestProject(t *testing.T) {
	st := finishedRun(t)
	res := Project(st)

	assert.Equal(t, "how does go do concurrency", res.OriginalQuery)
	assert.Equal(t, "final report", res.FinalAnswer)
	assert.Equal(t, []string{"go concurrency", "step_9.summary"}, res.SubQueries, "sub queries are taken verbatim from the plan")
	assert.Equal(t, []string{"http://a", "https://go.dev"}, res.SourcesUsed)
	assert.Equal(t, st.Plan(), res.PlanExecuted)
}

func TestProjectIsIdempotent(t *testing.T) {
	st := finishedRun(t)

	first, err := Project(st).MarshalIndent()
	require.NoError(t, err)
	second, err := Project(st).MarshalIndent()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestResearchResultJSON(t *testing.T) {
	st := NewRunState("run", "q", nil)
	data, err := Project(st).MarshalIndent()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Len(t, fields, 5)
	for _, key := range []string{"original_query", "final_answer", "sub_queries", "sources_used", "plan_executed"} {
		assert.Contains(t, fields, key)
	}
	assert.JSONEq(t, `[]`, string(fields["sources_used"]))
	assert.JSONEq(t, `[]`, string(fields["plan_executed"]))
	assert.True(t, strings.Contains(string(data), "\n    \"original_query\""), "four-space indent")
}
