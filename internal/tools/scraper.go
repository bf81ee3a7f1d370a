package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/rahul/delver/internal/engine"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultMaxChars  = 50000

	truncatedMarker = "\n... (content truncated) ..."
)

// RenderPolicy decides when a page is loaded in a headless browser instead
// of a plain HTTP fetch.
type RenderPolicy string

const (
	RenderNever    RenderPolicy = "never"
	RenderFallback RenderPolicy = "fallback"
	RenderAlways   RenderPolicy = "always"
)

// Renderer returns the HTML of a page after scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

type ScraperTool struct {
	UserAgent string
	MaxChars  int
	Policy    RenderPolicy
	Renderer  Renderer
	Client    *http.Client
	sanitizer *bluemonday.Policy
}

func NewScraperTool(timeout time.Duration) *ScraperTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ScraperTool{
		UserAgent: DefaultUserAgent,
		MaxChars:  DefaultMaxChars,
		Policy:    RenderNever,
		Client:    &http.Client{Timeout: timeout},
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (s *ScraperTool) Name() string { return string(engine.ActionScrape) }

func (s *ScraperTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *ScraperTool) Input() string {
	return "a single URL, usually a reference to a search hit such as \"step_1.urls[0]\"."
}

// Scrape returns the readable text of the page at rawURL.
func (s *ScraperTool) Scrape(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}

	if s.Policy == RenderAlways && s.Renderer != nil {
		return s.rendered(ctx, rawURL, parsedURL)
	}

	text, err := s.fetched(ctx, rawURL, parsedURL)
	if (err != nil || text == "") && s.Policy == RenderFallback && s.Renderer != nil {
		if rendered, rerr := s.rendered(ctx, rawURL, parsedURL); rerr == nil {
			return rendered, nil
		}
	}
	return text, err
}

func (s *ScraperTool) fetched(ctx context.Context, rawURL string, parsedURL *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}
	return s.extract(resp.Body, parsedURL)
}

func (s *ScraperTool) rendered(ctx context.Context, rawURL string, parsedURL *url.URL) (string, error) {
	html, err := s.Renderer.Render(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to render URL: %w", err)
	}
	return s.extract(strings.NewReader(html), parsedURL)
}

// extract runs readability over the page and returns a sanitised report,
// or "" when the page has no readable text.
func (s *ScraperTool) extract(r io.Reader, parsedURL *url.URL) (string, error) {
	article, err := readability.FromReader(r, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	policy := s.sanitizer
	if policy == nil {
		policy = bluemonday.StrictPolicy()
	}
	content := strings.TrimSpace(policy.Sanitize(article.TextContent))
	if content == "" {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", strings.TrimSpace(article.Title))
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", strings.TrimSpace(article.Excerpt))
	}
	b.WriteString("\n-- CONTENT --\n")

	limit := s.MaxChars
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	b.WriteString(truncate(content, limit))
	return b.String(), nil
}

// truncate cuts content to at most limit bytes without splitting a rune.
func truncate(content string, limit int) string {
	if len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + truncatedMarker
}
