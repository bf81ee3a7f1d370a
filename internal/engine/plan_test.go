package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	plan := mustParsePlan(t, `{
		"steps": [
			{"id": "step_1", "action": "search", "input": "rust vs go"},
			{"id": "step_2", "action": "scrape", "input": "step_1.urls[0]"},
			{"id": "step_3", "action": "scrape_url", "input": "https://go.dev"},
			{"id": "step_4", "action": "summarize", "input": ["step_2.content", "step_3.content"]},
			{"id": "step_5", "action": "finish", "input": "step_4.summary"}
		]
	}`)

	require.Len(t, plan, 5)
	assert.Equal(t, ActionSearch, plan[0].Action)
	assert.Equal(t, InputLiteral, plan[0].Input.Kind)
	assert.Equal(t, "rust vs go", plan[0].Input.Literal)

	assert.Equal(t, InputReference, plan[1].Input.Kind)
	assert.Equal(t, "step_1.urls[0]", plan[1].Input.String())

	assert.Equal(t, ActionScrape, plan[2].Action, "legacy alias normalises")
	assert.Equal(t, InputLiteral, plan[2].Input.Kind)

	assert.Equal(t, InputReferences, plan[3].Input.Kind)
	assert.Equal(t, "[step_2.content, step_3.content]", plan[3].Input.String())

	assert.Equal(t, ActionFinish, plan[4].Action)
}

func TestParsePlanInputShapes(t *testing.T) {
	plan := mustParsePlan(t, `{"steps": [
		{"id": "a", "action": "search"},
		{"id": "b", "action": "search", "input": null},
		{"id": "c", "action": "search", "input": 42},
		{"id": "d", "action": "SEARCH_GOOGLE", "input": true}
	]}`)

	assert.Equal(t, InputNone, plan[0].Input.Kind)
	assert.Equal(t, InputNone, plan[1].Input.Kind)
	assert.Equal(t, InputLiteral, plan[2].Input.Kind)
	assert.Equal(t, "42", plan[2].Input.Literal)
	assert.Equal(t, ActionSearch, plan[3].Action)
	assert.Equal(t, "true", plan[3].Input.Literal)
}

func TestParsePlanRejects(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target error
	}{
		{name: "not json", doc: `steps:`},
		{name: "no steps", doc: `{}`},
		{name: "empty steps", doc: `{"steps": []}`},
		{name: "missing action", doc: `{"steps": [{"id": "step_1"}]}`},
		{name: "object input", doc: `{"steps": [{"id": "step_1", "action": "search", "input": {"q": "x"}}]}`},
		{name: "mixed list", doc: `{"steps": [{"id": "step_1", "action": "summarize", "input": ["step_1", 3]}]}`},
		{
			name:   "unknown action",
			doc:    `{"steps": [{"id": "step_1", "action": "browse", "input": "x"}]}`,
			target: ErrUnknownAction,
		},
		{
			name: "duplicate id",
			doc: `{"steps": [
				{"id": "step_1", "action": "search", "input": "x"},
				{"id": "step_1", "action": "finish", "input": "step_1.urls[0]"}
			]}`,
			target: ErrDuplicateStep,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, plan)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			}
		})
	}
}

func TestPlanJSONRoundTripKeepsInputShape(t *testing.T) {
	doc := `{"steps":[{"id":"step_1","action":"search","input":"go"},{"id":"step_2","action":"summarize","input":["step_1.urls[0]","step_1.urls[1]"]},{"id":"step_3","action":"finish","input":null}]}`
	plan := mustParsePlan(t, doc)

	data, err := json.Marshal(map[string]Plan{"steps": plan})
	require.NoError(t, err)
	assert.JSONEq(t, doc, string(data))
}

func TestFallbackPlan(t *testing.T) {
	plan := FallbackPlan("what is rust")
	require.Len(t, plan, 1)
	assert.Equal(t, "step_1", plan[0].ID)
	assert.Equal(t, ActionSearch, plan[0].Action)
	assert.Equal(t, "what is rust", plan[0].Input.Literal)
}

func TestLiteralNotStartingWithPrefixIsNotAReference(t *testing.T) {
	var in Input
	require.NoError(t, json.Unmarshal([]byte(`"steps to learn go"`), &in))
	assert.Equal(t, InputLiteral, in.Kind, "prefix match is on the step_ token")

	require.NoError(t, json.Unmarshal([]byte(`"step_2.content"`), &in))
	assert.Equal(t, InputReference, in.Kind)
}
