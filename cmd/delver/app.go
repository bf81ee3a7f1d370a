package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rahul/delver/internal/agent"
	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/internal/governance"
	"github.com/rahul/delver/internal/llm"
	"github.com/rahul/delver/internal/observability"
	"github.com/rahul/delver/internal/store"
	"github.com/rahul/delver/internal/tools"
	"github.com/rahul/delver/pkg/config"
)

// app holds everything a command needs, wired from the config.
type app struct {
	cfg        *config.Config
	logger     *observability.Logger
	tracing    *observability.Tracing
	store      *store.Store
	browser    *tools.BrowserTool
	researcher *agent.Researcher
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	a.logger = observability.NewLogger(observability.Options{
		Level:  cfg.Telemetry.LogLevel,
		Dir:    cfg.Telemetry.LogDir,
		Output: logOut,
	})

	tracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Exporter: cfg.Telemetry.Trace,
		Endpoint: cfg.Telemetry.Endpoint,
		Dir:      cfg.Telemetry.LogDir,
	})
	if err != nil {
		return nil, err
	}
	a.tracing = tracing

	pName, pCfg := cfg.GetDefaultProvider()
	provider, err := llm.New(ctx, pName, pCfg, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var search interface {
		tools.Tool
		engine.Searcher
	}
	switch cfg.Search.Provider {
	case "serper":
		search = tools.NewSerperTool(cfg.Search.APIKey, cfg.Search.MaxResults)
	default:
		ddg, err := tools.NewSearchTool(cfg.Search.MaxResults, "", nil)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize search tool: %w", err)
		}
		search = ddg
	}

	scraper := tools.NewScraperTool(cfg.Scrape.Timeout)
	if cfg.Scrape.MaxChars > 0 {
		scraper.MaxChars = cfg.Scrape.MaxChars
	}
	if cfg.Scrape.UserAgent != "" {
		scraper.UserAgent = cfg.Scrape.UserAgent
	}
	if cfg.Scrape.Render != "" {
		scraper.Policy = tools.RenderPolicy(cfg.Scrape.Render)
	}
	if scraper.Policy != tools.RenderNever {
		a.browser = tools.NewBrowserTool(scraper.UserAgent, cfg.Scrape.Timeout)
		scraper.Renderer = a.browser
	}

	policy, err := governance.FromRules(cfg.Governance.DeniedActions, cfg.Governance.DeniedPatterns)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("governance rules: %w", err)
	}

	prompts := agent.NewPromptManager(cfg.App.PromptsDir)
	registry := tools.DefaultRegistry(search, scraper)

	dispatcher := engine.NewDispatcher(
		tools.AuditedSearcher{Searcher: search, Logger: a.logger},
		tools.AuditedScraper{Scraper: scraper, Logger: a.logger},
		provider,
		engine.WithPolicy(governance.Audited{Inner: policy, Logger: a.logger}),
		engine.WithStepTimeout(cfg.Engine.StepTimeout),
		engine.WithReportPrompt(prompts.GetReportPrompt()),
		engine.WithDispatchLogger(a.logger.Zap()),
	)
	eng := engine.New(dispatcher,
		engine.WithMaxTicks(cfg.Engine.MaxTicks),
		engine.WithLogger(a.logger.Zap()),
	)

	a.store, err = store.Open(cfg.Memory.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	planner := agent.NewPlanner(provider, prompts, registry, a.logger)
	a.researcher = agent.NewResearcher(planner, eng,
		agent.WithRunStore(a.store),
		agent.WithEventLogger(a.logger),
	)
	return a, nil
}

func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.tracing != nil {
		a.tracing.Shutdown(context.Background())
	}
	if a.logger != nil {
		a.logger.Sync()
	}
}
