package engine

import (
	"encoding/json"
	"strings"
)

// NoAnswerPlaceholder is the final answer of a run that never produced one.
const NoAnswerPlaceholder = "Could not generate a final answer based on the provided content."

// ResearchResult is the durable record of a finished run.
type ResearchResult struct {
	OriginalQuery string   `json:"original_query"`
	FinalAnswer   string   `json:"final_answer"`
	SubQueries    []string `json:"sub_queries"`
	SourcesUsed   []string `json:"sources_used"`
	PlanExecuted  Plan     `json:"plan_executed"`
}

// Project builds the result record from a run. It only reads st, so calling
// it twice on the same finished run yields the same record.
func Project(st *RunState) ResearchResult {
	plan := st.Plan()
	results := st.Results()

	res := ResearchResult{
		OriginalQuery: st.Query(),
		FinalAnswer:   NoAnswerPlaceholder,
		SubQueries:    []string{},
		SourcesUsed:   []string{},
		PlanExecuted:  plan,
	}
	if res.PlanExecuted == nil {
		res.PlanExecuted = Plan{}
	}
	if answer, ok := st.FinalAnswer(); ok {
		res.FinalAnswer = answer
	}

	for _, step := range plan {
		switch step.Action {
		case ActionSearch:
			res.SubQueries = append(res.SubQueries, plannedQueries(step.Input)...)
		case ActionScrape:
			out, ok := results[step.ID]
			if !ok || !out.OK() {
				continue
			}
			if url, ok := sourceURL(step.Input, results); ok {
				res.SourcesUsed = append(res.SourcesUsed, url)
			}
		}
	}
	return res
}

// plannedQueries returns a search step's input as written in the plan.
func plannedQueries(in Input) []string {
	switch in.Kind {
	case InputLiteral:
		return []string{in.Literal}
	case InputReference:
		return []string{in.Refs[0].Expr}
	case InputReferences:
		exprs := make([]string, len(in.Refs))
		for i, r := range in.Refs {
			exprs[i] = r.Expr
		}
		return exprs
	default:
		return nil
	}
}

func sourceURL(in Input, results Results) (string, bool) {
	switch in.Kind {
	case InputLiteral:
		return strings.TrimSpace(in.Literal), true
	case InputReference:
		v, ok := in.Refs[0].Resolve(results)
		if !ok {
			return "", false
		}
		url, isString := v.(string)
		return strings.TrimSpace(url), isString
	default:
		return "", false
	}
}

// MarshalIndent renders the record the way it is written to disk.
func (r ResearchResult) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "    ")
}
