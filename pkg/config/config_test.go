package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSONWithDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"app": {"name": "research-bot"},
		"providers": {
			"openai": {"api_key": "sk-test", "model": "gpt-4o", "enabled": true}
		},
		"gateways": {"telegram": {"token": "tg", "enabled": true}},
		"engine": {"max_ticks": 10, "step_timeout": "5s"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "research-bot", cfg.App.Name)
	assert.Equal(t, 10, cfg.Engine.MaxTicks)
	assert.Equal(t, 5*time.Second, cfg.Engine.StepTimeout)
	assert.Equal(t, 3, cfg.Search.MaxResults)
	assert.Equal(t, "duckduckgo", cfg.Search.Provider)
	assert.Equal(t, 50000, cfg.Scrape.MaxChars)
	assert.Equal(t, "fallback", cfg.Scrape.Render)
	assert.Equal(t, "research_result.json", cfg.Output.Path)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "gpt-4o", p.Model)

	tg, ok := cfg.GetGatewayConfig("telegram")
	assert.True(t, ok)
	assert.Equal(t, "tg", tg.Token)
	_, ok = cfg.GetGatewayConfig("discord")
	assert.False(t, ok)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
providers:
  gemini:
    api_key: g-key
    model: gemini-2.0-flash
    enabled: true
search:
  provider: serper
  api_key: serper-key
  max_results: 5
governance:
  denied_actions: [scrape]
  denied_patterns: ["internal\\.corp"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, []string{"scrape"}, cfg.Governance.DeniedActions)
	assert.Equal(t, []string{`internal\.corp`}, cfg.Governance.DeniedPatterns)
	assert.Zero(t, cfg.Engine.MaxTicks, "plan length is the only bound by default")
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DELVER_ENGINE_MAX_TICKS", "7")
	path := writeFile(t, "config.json", `{"engine": {"max_ticks": 10}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxTicks)
}

func TestApplyEnvFallbacks(t *testing.T) {
	env := map[string]string{
		"OPENROUTER_API_KEY": "or-key",
		"OPENAI_API_KEY":     "oa-key",
		"SERPER_API_KEY":     "sp-key",
	}
	cfg := &Config{Providers: map[string]ProviderConfig{
		"openai": {Model: "gpt-4o", Enabled: false},
	}}
	cfg.applyEnvFallbacks(func(k string) string { return env[k] })

	assert.Equal(t, "oa-key", cfg.Providers["openai"].APIKey)
	assert.False(t, cfg.Providers["openai"].Enabled, "explicit enabled flag is kept")
	assert.Equal(t, "gpt-4o", cfg.Providers["openai"].Model)

	or := cfg.Providers["openrouter"]
	assert.True(t, or.Enabled)
	assert.Equal(t, "https://openrouter.ai/api/v1", or.BaseURL)
	assert.NotEmpty(t, or.Model)

	_, ok := cfg.Providers["gemini"]
	assert.False(t, ok)
	assert.Equal(t, "sp-key", cfg.Search.APIKey)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	assert.True(t, errors.Is(err, ErrMissingCredentials))

	cfg.Providers = map[string]ProviderConfig{"openai": {Enabled: true}}
	assert.True(t, errors.Is(cfg.Validate(), ErrMissingCredentials))

	cfg.Providers["openai"] = ProviderConfig{APIKey: "k", Enabled: true}
	assert.NoError(t, cfg.Validate())

	cfg.Search.Provider = "serper"
	assert.True(t, errors.Is(cfg.Validate(), ErrMissingCredentials))

	cfg.Search.APIKey = "s"
	cfg.Scrape.Render = "sometimes"
	assert.Error(t, cfg.Validate())
}

func TestGetDefaultProviderPrefersConfiguredName(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Provider: "openrouter"},
		Providers: map[string]ProviderConfig{
			"gemini":     {APIKey: "g", Enabled: true},
			"openrouter": {APIKey: "o", Enabled: true},
		},
	}
	name, _ := cfg.GetDefaultProvider()
	assert.Equal(t, "openrouter", name)

	cfg.App.Provider = ""
	name, _ = cfg.GetDefaultProvider()
	assert.Equal(t, "gemini", name)
}
