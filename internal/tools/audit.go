package tools

import (
	"context"

	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/observability"
)

// AuditedSearcher records a tool_call and tool_result event around every search.
type AuditedSearcher struct {
	engine.Searcher
	Logger *observability.Logger
}

func (a AuditedSearcher) Search(ctx context.Context, query string) ([]engine.SearchResult, error) {
	chatID, runID := observability.RunFrom(ctx)
	a.Logger.LogToolCall(chatID, runID, string(engine.ActionSearch), query)
	results, err := a.Searcher.Search(ctx, query)
	if err != nil {
		a.Logger.LogToolResult(chatID, runID, string(engine.ActionSearch), "", err)
		return results, err
	}
	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.Link)
	}
	a.Logger.LogToolResult(chatID, runID, string(engine.ActionSearch), urls, nil)
	return results, nil
}

// AuditedScraper records a tool_call and tool_result event around every scrape.
type AuditedScraper struct {
	engine.Scraper
	Logger *observability.Logger
}

func (a AuditedScraper) Scrape(ctx context.Context, url string) (string, error) {
	chatID, runID := observability.RunFrom(ctx)
	a.Logger.LogToolCall(chatID, runID, string(engine.ActionScrape), url)
	text, err := a.Scraper.Scrape(ctx, url)
	a.Logger.LogToolResult(chatID, runID, string(engine.ActionScrape), map[string]int{"chars": len(text)}, err)
	return text, err
}
