package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rahul/delver/internal/engine"
)

const serperEndpoint = "https://google.serper.dev/search"

// SerperTool searches Google through the serper.dev API.
type SerperTool struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

func NewSerperTool(apiKey string, maxResults int) *SerperTool {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &SerperTool{
		APIKey:     apiKey,
		Endpoint:   serperEndpoint,
		MaxResults: maxResults,
		Client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SerperTool) Name() string        { return string(engine.ActionSearch) }
func (s *SerperTool) Description() string { return searchDescription }
func (s *SerperTool) Input() string       { return searchInput }

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *SerperTool) Search(ctx context.Context, query string) ([]engine.SearchResult, error) {
	body, err := json.Marshal(map[string]any{"q": query, "num": s.MaxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper responded with %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var raw serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode serper response: %w", err)
	}

	out := []engine.SearchResult{}
	for _, item := range raw.Organic {
		if len(out) == s.MaxResults {
			break
		}
		if item.Link == "" {
			continue
		}
		out = append(out, engine.SearchResult{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}
