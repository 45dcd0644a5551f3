// Package config loads the process configuration from the environment.
// Binaries call Load once at startup; a .env file is honored when present.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PromptService PromptServiceConfig
	LLM           LLMConfig
	Redis         RedisConfig
	Export        ExportConfig
	Log           LogConfig
}

type PromptServiceConfig struct {
	BaseURL  string `envconfig:"PROMPT_SERVICE_URL" default:"http://localhost:8080"`
	APIKey   string `envconfig:"PROMPT_SERVICE_API_KEY"`
	CacheTTL int    `envconfig:"PROMPT_CACHE_TTL_SECONDS" default:"300"`
}

type LLMConfig struct {
	OpenAIKey       string `envconfig:"OPENAI_API_KEY"`
	AnthropicKey    string `envconfig:"ANTHROPIC_API_KEY"`
	DefaultProvider string `envconfig:"LLM_DEFAULT_PROVIDER" default:"openai"`
	DefaultModel    string `envconfig:"LLM_DEFAULT_MODEL" default:"gpt-4o"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ExportConfig points the span exporter at its queue and collector.
type ExportConfig struct {
	CollectorURL string `envconfig:"TRACE_COLLECTOR_URL"`
	CollectorKey string `envconfig:"TRACE_COLLECTOR_API_KEY"`
	QueueAddr    string `envconfig:"EXPORT_QUEUE_ADDR"`
	Concurrency  int    `envconfig:"EXPORT_CONCURRENCY" default:"5"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads .env if one exists, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// ValidateProviders checks that every named provider has a credential.
func (c *Config) ValidateProviders() error {
	var missing []string
	if c.LLM.DefaultProvider == "openai" && c.LLM.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.LLM.DefaultProvider == "anthropic" && c.LLM.AnthropicKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}
