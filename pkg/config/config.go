package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredentials means a provider the run needs has no API key.
var ErrMissingCredentials = errors.New("missing credentials")

type Config struct {
	App        AppConfig                 `mapstructure:"app" json:"app"`
	Gateways   map[string]GatewayConfig  `mapstructure:"gateways" json:"gateways"`
	Providers  map[string]ProviderConfig `mapstructure:"providers" json:"providers"`
	Search     SearchConfig              `mapstructure:"search" json:"search"`
	Scrape     ScrapeConfig              `mapstructure:"scrape" json:"scrape"`
	Engine     EngineConfig              `mapstructure:"engine" json:"engine"`
	Governance GovernanceConfig          `mapstructure:"governance" json:"governance"`
	Memory     MemoryConfig              `mapstructure:"memory" json:"memory"`
	Output     OutputConfig              `mapstructure:"output" json:"output"`
	Server     ServerConfig              `mapstructure:"server" json:"server"`
	Telemetry  TelemetryConfig           `mapstructure:"telemetry" json:"telemetry"`
}

type AppConfig struct {
	Name       string `mapstructure:"name" json:"name"`
	Workspace  string `mapstructure:"workspace" json:"workspace"`
	PromptsDir string `mapstructure:"prompts_dir" json:"prompts_dir"`
	Provider   string `mapstructure:"provider" json:"provider,omitempty"`
}

type GatewayConfig struct {
	Token   string `mapstructure:"token" json:"token"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	Model   string `mapstructure:"model" json:"model"`
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

type SearchConfig struct {
	Provider   string `mapstructure:"provider" json:"provider"` // duckduckgo or serper
	APIKey     string `mapstructure:"api_key" json:"api_key,omitempty"`
	MaxResults int    `mapstructure:"max_results" json:"max_results"`
}

type ScrapeConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxChars  int           `mapstructure:"max_chars" json:"max_chars"`
	Render    string        `mapstructure:"render" json:"render"` // never, fallback or always
	UserAgent string        `mapstructure:"user_agent" json:"user_agent,omitempty"`
}

type EngineConfig struct {
	MaxTicks    int           `mapstructure:"max_ticks" json:"max_ticks"`
	StepTimeout time.Duration `mapstructure:"step_timeout" json:"step_timeout"`
}

type GovernanceConfig struct {
	DeniedActions  []string `mapstructure:"denied_actions" json:"denied_actions"`
	DeniedPatterns []string `mapstructure:"denied_patterns" json:"denied_patterns"`
}

type MemoryConfig struct {
	Type string `mapstructure:"type" json:"type"`
	Path string `mapstructure:"path" json:"path"`
}

type OutputConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" json:"address"`
}

type TelemetryConfig struct {
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogDir   string `mapstructure:"log_dir" json:"log_dir"`
	Trace    string `mapstructure:"trace" json:"trace"` // none, file, stdout or otlp-http
	Endpoint string `mapstructure:"endpoint" json:"endpoint,omitempty"`
}

// envKeys are the conventional variables consulted when a provider has no
// key in the file.
var envKeys = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

var defaultModels = map[string]string{
	"openai":     "gpt-4o-mini",
	"openrouter": "openai/gpt-4o-mini",
	"gemini":     "gemini-2.0-flash",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "delver")
	v.SetDefault("app.prompts_dir", "prompts")
	v.SetDefault("search.provider", "duckduckgo")
	v.SetDefault("search.max_results", 3)
	v.SetDefault("scrape.timeout", 30*time.Second)
	v.SetDefault("scrape.max_chars", 50000)
	v.SetDefault("scrape.render", "fallback")
	v.SetDefault("engine.max_ticks", 0)
	v.SetDefault("engine.step_timeout", 60*time.Second)
	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "delver.db")
	v.SetDefault("output.path", "research_result.json")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_dir", "logs")
	v.SetDefault("telemetry.trace", "none")
}

// Load reads the config file at path (JSON or YAML by extension) with
// DELVER_ environment overrides. An empty path searches ./config.json,
// ./config.yaml and ./config/ and falls back to defaults when none exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DELVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyEnvFallbacks(os.Getenv)
	return &cfg, nil
}

// applyEnvFallbacks fills empty keys from the conventional variables. A
// provider that is not configured at all is added, enabled, when its
// variable is set.
func (c *Config) applyEnvFallbacks(getenv func(string) string) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, key := range envKeys {
		val := getenv(key)
		p, ok := c.Providers[name]
		switch {
		case ok && p.APIKey == "" && val != "":
			p.APIKey = val
		case !ok && val != "":
			p = ProviderConfig{APIKey: val, Enabled: true}
		default:
			continue
		}
		if p.Model == "" {
			p.Model = defaultModels[name]
		}
		if name == "openrouter" && p.BaseURL == "" {
			p.BaseURL = "https://openrouter.ai/api/v1"
		}
		c.Providers[name] = p
	}
	if c.Search.APIKey == "" {
		c.Search.APIKey = getenv("SERPER_API_KEY")
	}
}

// GetDefaultProvider returns app.provider when it is enabled, otherwise
// the first enabled provider by name.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	if p, ok := c.Providers[c.App.Provider]; ok && p.Enabled {
		return c.App.Provider, p
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns the named gateway config if enabled.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}

// Validate reports configuration failures that must stop a run before it
// starts.
func (c *Config) Validate() error {
	name, p := c.GetDefaultProvider()
	if name == "" {
		return fmt.Errorf("%w: no enabled language model provider (set OPENAI_API_KEY, OPENROUTER_API_KEY or GEMINI_API_KEY)", ErrMissingCredentials)
	}
	if p.APIKey == "" {
		return fmt.Errorf("%w: provider %s has no api_key", ErrMissingCredentials, name)
	}
	switch c.Search.Provider {
	case "duckduckgo", "":
	case "serper":
		if c.Search.APIKey == "" {
			return fmt.Errorf("%w: serper search needs SERPER_API_KEY", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	switch c.Scrape.Render {
	case "never", "fallback", "always", "":
	default:
		return fmt.Errorf("unknown scrape.render %q", c.Scrape.Render)
	}
	return nil
}
