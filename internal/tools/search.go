package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/tools/duckduckgo"

	"github.com/rahul/delver/internal/engine"
)

// DefaultMaxResults is how many hits a search step keeps.
const DefaultMaxResults = 3

const searchDescription = "Search the web for pages relevant to a query."
const searchInput = "a search query string."

const ddgNoResults = "No good DuckDuckGo Search Results was found"

// SearchTool searches DuckDuckGo. It needs no credentials.
type SearchTool struct {
	client     *duckduckgo.Tool
	maxResults int
}

func NewSearchTool(maxResults int, userAgent string, httpClient *http.Client) (*SearchTool, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if userAgent == "" {
		userAgent = duckduckgo.DefaultUserAgent
	}
	var opts []duckduckgo.Option
	if httpClient != nil {
		opts = append(opts, duckduckgo.WithHTTPClient(httpClient))
	}
	ddg, err := duckduckgo.New(maxResults, userAgent, opts...)
	if err != nil {
		return nil, err
	}
	return &SearchTool{client: ddg, maxResults: maxResults}, nil
}

func (s *SearchTool) Name() string        { return string(engine.ActionSearch) }
func (s *SearchTool) Description() string { return searchDescription }
func (s *SearchTool) Input() string       { return searchInput }

func (s *SearchTool) Search(ctx context.Context, query string) ([]engine.SearchResult, error) {
	res, err := s.client.Call(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return parseDuckDuckGo(res, s.maxResults), nil
}

// parseDuckDuckGo reads the blocks of "Title:", "Description:" and "URL:"
// lines the langchaingo tool formats its hits as.
func parseDuckDuckGo(raw string, limit int) []engine.SearchResult {
	results := []engine.SearchResult{}
	if strings.TrimSpace(raw) == ddgNoResults {
		return results
	}
	for _, block := range strings.Split(raw, "\n\n") {
		var r engine.SearchResult
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "Title: "):
				r.Title = strings.TrimSpace(strings.TrimPrefix(line, "Title: "))
			case strings.HasPrefix(line, "Description: "):
				r.Snippet = strings.TrimSpace(strings.TrimPrefix(line, "Description: "))
			case strings.HasPrefix(line, "URL: "):
				r.Link = strings.TrimSpace(strings.TrimPrefix(line, "URL: "))
			}
		}
		if r.Link == "" {
			continue
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results
}
