// Package config loads the service configuration from YAML and flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/quantfund/internal/cache"
	"github.com/sawpanic/quantfund/internal/confidence"
	"github.com/sawpanic/quantfund/internal/domain"
	"github.com/sawpanic/quantfund/internal/engine"
	"github.com/sawpanic/quantfund/internal/feed"
	httpapi "github.com/sawpanic/quantfund/internal/interfaces/http"
	"github.com/sawpanic/quantfund/internal/log"
	"github.com/sawpanic/quantfund/internal/net/ratelimit"
	"github.com/sawpanic/quantfund/internal/report/perf"
	"github.com/sawpanic/quantfund/internal/stream"
)

// Config is the complete service configuration
type Config struct {
	Engine     engine.Config         `yaml:"engine"`
	Confidence confidence.Config     `yaml:"confidence"`
	Metrics    perf.AggregatorConfig `yaml:"metrics"`
	Feed       feed.Config           `yaml:"feed"`
	Publisher  stream.HubConfig      `yaml:"publisher"`
	HTTP       httpapi.ServerConfig  `yaml:"http"`
	RateLimit  ratelimit.Config      `yaml:"rate_limit"`
	Redis      cache.Config          `yaml:"redis"`
	Log        log.Config            `yaml:"log"`
	Seed       uint64                `yaml:"seed"` // confidence walks; 0 picks a random seed
	Strategies []StrategySeed        `yaml:"strategies"`
}

// StrategySeed is a strategy registered at startup
type StrategySeed struct {
	ID     string        `yaml:"id"`
	Name   string        `yaml:"name"`
	Owner  string        `yaml:"owner"`
	Status domain.Status `yaml:"status"`
}

// Default returns the dashboard's constants and its four strategy cards
func Default() *Config {
	return &Config{
		Engine:     engine.DefaultConfig(),
		Confidence: confidence.DefaultConfig(),
		Metrics:    perf.DefaultAggregatorConfig(),
		Feed:       feed.DefaultConfig(),
		Publisher:  stream.DefaultHubConfig(),
		HTTP:       httpapi.DefaultServerConfig(),
		RateLimit:  ratelimit.DefaultConfig(),
		Redis:      cache.DefaultConfig(),
		Log:        log.DefaultConfig(),
		Strategies: DefaultStrategies(),
	}
}

// DefaultStrategies are the dashboard's strategy cards, owned by its
// leaderboard participants
func DefaultStrategies() []StrategySeed {
	return []StrategySeed{
		{ID: "ai-momentum-alpha", Name: "AI Momentum Alpha", Owner: "QuantMaster_AI", Status: domain.StatusActive},
		{ID: "sentiment-fusion", Name: "Sentiment Fusion", Owner: "AlphaSeeker", Status: domain.StatusActive},
		{ID: "options-flow-ai", Name: "Options Flow AI", Owner: "QuantMaster_AI", Status: domain.StatusTesting},
		{ID: "macro-signal-engine", Name: "Macro Signal Engine", Owner: "DataDriven", Status: domain.StatusActive},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate ensures the configuration is valid and consistent
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Confidence.Validate(); err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if c.Feed.Enabled {
		if err := c.Feed.Validate(); err != nil {
			return fmt.Errorf("feed: %w", err)
		}
	}
	if c.Publisher.Buffer < 1 {
		return fmt.Errorf("publisher: buffer must be at least 1, got %d", c.Publisher.Buffer)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	seen := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.ID == "" {
			return fmt.Errorf("strategies[%d]: id cannot be empty", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("strategies[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if s.Status != "" && !s.Status.Valid() {
			return fmt.Errorf("strategies[%d]: invalid status %q", i, s.Status)
		}
	}
	return nil
}
