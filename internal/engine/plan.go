package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed plan_schema.json
var planSchemaJSON string

// Action is the kind of work a step performs.
type Action string

const (
	ActionSearch    Action = "search"
	ActionScrape    Action = "scrape"
	ActionSummarize Action = "summarize"
	ActionFinish    Action = "finish"
)

// Actions lists every action the dispatcher understands, in catalogue order.
var Actions = []Action{ActionSearch, ActionScrape, ActionSummarize, ActionFinish}

var actionAliases = map[string]Action{
	"search_google": ActionSearch,
	"scrape_url":    ActionScrape,
}

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrDuplicateStep = errors.New("duplicate step id")
	ErrEmptyPlan     = errors.New("plan has no steps")
)

// ParseAction normalises an action tag, accepting the legacy aliases.
func ParseAction(tag string) (Action, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, a := range Actions {
		if string(a) == tag {
			return a, nil
		}
	}
	if a, ok := actionAliases[tag]; ok {
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, tag)
}

// InputKind discriminates the shapes a step input can take.
type InputKind int

const (
	InputNone InputKind = iota
	InputLiteral
	InputReference
	InputReferences
)

// Reference addresses an earlier step's output. The expression is parsed
// once; an expression that does not parse never resolves.
type Reference struct {
	Expr string
	path Path
	err  error
}

// NewReference parses expr.
func NewReference(expr string) Reference {
	p, err := ParsePath(expr)
	return Reference{Expr: expr, path: p, err: err}
}

// Resolve looks the reference up in results.
func (r Reference) Resolve(results Results) (any, bool) {
	if r.err != nil {
		return nil, false
	}
	return r.path.Resolve(results)
}

// Err reports why the expression failed to parse, if it did.
func (r Reference) Err() error {
	return r.err
}

// Input is what a step reads: nothing, a literal, or references to earlier outputs.
type Input struct {
	Kind    InputKind
	Literal string
	Refs    []Reference
	raw     json.RawMessage
}

// Literal builds a literal input used as-is.
func Literal(s string) Input {
	return Input{Kind: InputLiteral, Literal: s}
}

// Ref builds a single-reference input.
func Ref(expr string) Input {
	return Input{Kind: InputReference, Refs: []Reference{NewReference(expr)}}
}

// Refs builds a multi-reference input whose resolved values are joined.
func Refs(exprs ...string) Input {
	in := Input{Kind: InputReferences}
	for _, e := range exprs {
		in.Refs = append(in.Refs, NewReference(e))
	}
	return in
}

// String renders the input the way it was written in the plan.
func (in Input) String() string {
	switch in.Kind {
	case InputLiteral:
		return in.Literal
	case InputReference:
		return in.Refs[0].Expr
	case InputReferences:
		exprs := make([]string, len(in.Refs))
		for i, r := range in.Refs {
			exprs[i] = r.Expr
		}
		return "[" + strings.Join(exprs, ", ") + "]"
	default:
		return ""
	}
}

func (in Input) MarshalJSON() ([]byte, error) {
	switch in.Kind {
	case InputLiteral:
		if len(in.raw) > 0 {
			return in.raw, nil
		}
		return json.Marshal(in.Literal)
	case InputReference:
		return json.Marshal(in.Refs[0].Expr)
	case InputReferences:
		exprs := make([]string, len(in.Refs))
		for i, r := range in.Refs {
			exprs[i] = r.Expr
		}
		return json.Marshal(exprs)
	default:
		return []byte("null"), nil
	}
}

func (in *Input) UnmarshalJSON(data []byte) error {
	parsed, err := decodeInput(data)
	if err != nil {
		return err
	}
	*in = parsed
	return nil
}

func decodeInput(data json.RawMessage) (Input, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Input{}, nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Input{}, err
		}
		if strings.HasPrefix(strings.TrimSpace(s), RefPrefix) {
			return Ref(s), nil
		}
		return Literal(s), nil
	case '[':
		var exprs []string
		if err := json.Unmarshal(trimmed, &exprs); err != nil {
			return Input{}, fmt.Errorf("reference list must contain strings: %w", err)
		}
		return Refs(exprs...), nil
	case '{':
		return Input{}, fmt.Errorf("unsupported object input")
	default:
		// numbers and booleans are literals in their JSON spelling
		return Input{Kind: InputLiteral, Literal: string(trimmed), raw: append(json.RawMessage(nil), trimmed...)}, nil
	}
}

// Step is one planned action.
type Step struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
	Input  Input  `json:"input"`
}

// Plan is the ordered list of steps a run executes. It is read-only once
// execution starts.
type Plan []Step

// FallbackPlan is the single search step used when plan generation fails.
func FallbackPlan(query string) Plan {
	return Plan{{ID: RefPrefix + "1", Action: ActionSearch, Input: Literal(query)}}
}

var (
	compileOnce sync.Once
	planSchema  *jsonschema.Schema
	compileErr  error
)

func compiledPlanSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(planSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("decode plan schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("plan_schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add plan schema: %w", err)
			return
		}
		planSchema, compileErr = c.Compile("plan_schema.json")
	})
	return planSchema, compileErr
}

// ParsePlan decodes a plan document of the form {"steps": [{id, action, input}]}.
// Steps with an unrecognised action or a repeated id reject the whole plan.
func ParsePlan(data []byte) (Plan, error) {
	schema, err := compiledPlanSchema()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("plan does not match schema: %w", err)
	}

	var doc struct {
		Steps []struct {
			ID     string          `json:"id"`
			Action string          `json:"action"`
			Input  json.RawMessage `json:"input"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if len(doc.Steps) == 0 {
		return nil, ErrEmptyPlan
	}

	plan := make(Plan, 0, len(doc.Steps))
	seen := make(map[string]bool, len(doc.Steps))
	for i, s := range doc.Steps {
		action, err := ParseAction(s.Action)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, s.ID, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.ID)
		}
		seen[s.ID] = true
		in, err := decodeInput(s.Input)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s) input: %w", i, s.ID, err)
		}
		plan = append(plan, Step{ID: s.ID, Action: action, Input: in})
	}
	return plan, nil
}
