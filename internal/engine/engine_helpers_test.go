package engine

import (
	"context"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type searchFunc func(ctx context.Context, query string) ([]SearchResult, error)

func (f searchFunc) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return f(ctx, query)
}

type scrapeFunc func(ctx context.Context, url string) (string, error)

func (f scrapeFunc) Scrape(ctx context.Context, url string) (string, error) {
	return f(ctx, url)
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

func (f generateFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// providers records every outbound call so tests can assert on side effects.
type providers struct {
	hits     []SearchResult
	pages    map[string]string
	report   string
	searches []string
	scrapes  []string
	prompts  []string
}

func (p *providers) dispatcher(opts ...DispatcherOption) *Dispatcher {
	search := searchFunc(func(_ context.Context, q string) ([]SearchResult, error) {
		p.searches = append(p.searches, q)
		return p.hits, nil
	})
	scrape := scrapeFunc(func(_ context.Context, url string) (string, error) {
		p.scrapes = append(p.scrapes, url)
		return p.pages[url], nil
	})
	generate := generateFunc(func(_ context.Context, prompt string) (string, error) {
		p.prompts = append(p.prompts, prompt)
		return p.report, nil
	})
	return NewDispatcher(search, scrape, generate, opts...)
}

func (p *providers) engine(opts ...Option) *Engine {
	return New(p.dispatcher(), opts...)
}

func mustParsePlan(t *testing.T, doc string) Plan {
	t.Helper()
	plan, err := ParsePlan([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	return plan
}
