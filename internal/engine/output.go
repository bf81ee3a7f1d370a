package engine

import (
	"fmt"
	"strings"
)

// Status tags how a step ended.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Text prefixes used when a failure is rendered as plain text.
const (
	SkippedPrefix      = "SKIPPED: "
	ScrapeFailedPrefix = "SCRAPE_FAILED: "
)

// SearchResult is one hit returned by a search provider.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

func (r SearchResult) field(name string) (any, bool) {
	switch name {
	case "title":
		return r.Title, true
	case "link", "url":
		return r.Link, true
	case "snippet":
		return r.Snippet, true
	}
	return nil, false
}

// StepOutput is what a single executed step leaves behind in the run's
// results. Which payload field is set depends on Action.
type StepOutput struct {
	Action  Action         `json:"action"`
	Status  Status         `json:"status"`
	URLs    []SearchResult `json:"urls,omitempty"`
	Content string         `json:"content,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Results maps step ids to their recorded outputs.
type Results map[string]StepOutput

func searched(urls []SearchResult) StepOutput {
	if urls == nil {
		urls = []SearchResult{}
	}
	return StepOutput{Action: ActionSearch, Status: StatusOK, URLs: urls}
}

func scraped(content string) StepOutput {
	return StepOutput{Action: ActionScrape, Status: StatusOK, Content: content}
}

func summarized(action Action, summary string) StepOutput {
	return StepOutput{Action: action, Status: StatusOK, Summary: summary}
}

func failed(action Action, reason string) StepOutput {
	return StepOutput{Action: action, Status: StatusFailed, Reason: reason}
}

func skipped(action Action, reason string) StepOutput {
	return StepOutput{Action: action, Status: StatusSkipped, Reason: reason}
}

// OK reports whether the step produced usable output.
func (o StepOutput) OK() bool {
	return o.Status == StatusOK
}

// Failure returns the failure marker for a step that did not succeed.
func (o StepOutput) Failure() (Failure, bool) {
	if o.OK() {
		return Failure{}, false
	}
	return Failure{Action: o.Action, Status: o.Status, Reason: o.Reason}, true
}

// Text is the primary textual payload of the output.
func (o StepOutput) Text() string {
	if f, ok := o.Failure(); ok {
		return f.String()
	}
	switch o.Action {
	case ActionSearch:
		return formatSearchResults(o.URLs)
	case ActionScrape:
		return o.Content
	default:
		return o.Summary
	}
}

func (o StepOutput) field(name string) (any, bool) {
	if f, ok := o.Failure(); ok {
		return f, true
	}
	switch {
	case name == "urls" && o.Action == ActionSearch:
		return o.URLs, true
	case name == "content" && o.Action == ActionScrape:
		return o.Content, true
	case name == "summary" && (o.Action == ActionSummarize || o.Action == ActionFinish):
		return o.Summary, true
	}
	return nil, false
}

// Failure is what a reference resolves to when it addresses a step that
// failed or was skipped. Joins over several references drop failed scrapes
// and keep skipped text.
type Failure struct {
	Action Action
	Status Status
	Reason string
}

func (f Failure) String() string {
	switch {
	case f.Status == StatusSkipped:
		return SkippedPrefix + f.Reason
	case f.Action == ActionScrape:
		return ScrapeFailedPrefix + f.Reason
	default:
		return f.Reason
	}
}

func formatSearchResults(results []SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", r.Title, r.Link)
	}
	return b.String()
}
