package tools

import (
	"fmt"
	"strings"

	"github.com/rahul/delver/internal/engine"
)

// Tool describes one action a plan step may use. The planner shows the
// catalogue to the model; the engine dispatches by action name.
type Tool interface {
	Name() string
	Description() string
	Input() string // what the step's input should be
}

// Registry manages the set of available tools.
type Registry struct {
	Tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		Tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	if _, ok := r.Tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.Tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	return r.Tools[name]
}

// List returns the tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.Tools[name])
	}
	return out
}

// Catalogue renders the registered tools as a markdown list for prompts.
func (r *Registry) Catalogue() string {
	var b strings.Builder
	for _, t := range r.List() {
		fmt.Fprintf(&b, "- `%s`: %s Input: %s\n", t.Name(), t.Description(), t.Input())
	}
	return b.String()
}

// action is a catalogue entry for actions the engine handles without a
// dedicated provider type.
type action struct {
	name, description, input string
}

func (a action) Name() string        { return a.name }
func (a action) Description() string { return a.description }
func (a action) Input() string       { return a.input }

// SummarizeAction and FinishAction complete the catalogue next to the
// search and scrape providers.
var (
	SummarizeAction Tool = action{
		name:        string(engine.ActionSummarize),
		description: "Write a structured research report from gathered page content.",
		input:       "a list of references to scraped content, e.g. [\"step_2.content\", \"step_3.content\"].",
	}
	FinishAction Tool = action{
		name:        string(engine.ActionFinish),
		description: "End the run and return the given text as the final answer.",
		input:       "a reference to a summary, e.g. \"step_4.summary\".",
	}
)

// DefaultRegistry lists the four actions with the given search and scrape
// providers in engine order.
func DefaultRegistry(search, scrape Tool) *Registry {
	r := NewRegistry()
	r.Register(search)
	r.Register(scrape)
	r.Register(SummarizeAction)
	r.Register(FinishAction)
	return r
}
