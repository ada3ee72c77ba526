// Package config loads agentctx configuration from YAML.
// Configuration source priority (highest to lowest):
//  1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, DATABASE_URL, REDIS_URL, AGENTCTX_*)
//  2. The config file passed to Load
//  3. Built-in defaults
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/tool"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQL      = "sql"
	BackendRedis    = "redis"
)

// Provider names for summarizers and token counters.
const (
	ProviderNone        = "none"
	ProviderAnthropic   = "anthropic"
	ProviderOpenAI      = "openai"
	ProviderTiktoken    = "tiktoken"
	ProviderApproximate = "approximate"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultFileDir        = ".agentctx"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// ProviderConfig holds credentials for one model provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SummarizerConfig selects the model that writes summaries.
type SummarizerConfig struct {
	// Provider: "anthropic" | "openai" | "none"
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// TokenCounterConfig selects how the engine measures the working set.
type TokenCounterConfig struct {
	// Provider: "approximate" (default) | "anthropic" | "tiktoken"
	Provider string `yaml:"provider"`

	// Model is the Anthropic model used for count_tokens.
	Model string `yaml:"model"`

	// Encoding is the tiktoken encoding. Default: cl100k_base
	Encoding string `yaml:"encoding"`
}

// StorageConfig selects where snapshots are persisted.
type StorageConfig struct {
	// Backend: "memory" | "file" (default) | "postgres" | "sql" | "redis"
	Backend     string        `yaml:"backend"`
	Dir         string        `yaml:"dir"`
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	// Level: "debug" | "info" (default) | "warn" | "error"
	Level string `yaml:"level"`

	// Format: "text" (default) | "json"
	Format string `yaml:"format"`
}

// ToolsConfig controls how the CLI and server run agent tools such as
// context_reload.
type ToolsConfig struct {
	// Timeout bounds a single tool call. Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Parallel runs the tool calls of one assistant message concurrently.
	Parallel bool `yaml:"parallel"`
}

// Config is the complete agentctx configuration.
type Config struct {
	Engine       compaction.Config  `yaml:"engine"`
	Anthropic    ProviderConfig     `yaml:"anthropic"`
	OpenAI       ProviderConfig     `yaml:"openai"`
	Summarizer   SummarizerConfig   `yaml:"summarizer"`
	TokenCounter TokenCounterConfig `yaml:"token_counter"`
	Storage      StorageConfig      `yaml:"storage"`
	Tools        ToolsConfig        `yaml:"tools"`
	Log          LogConfig          `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Engine: *compaction.DefaultConfig(),
		Summarizer: SummarizerConfig{
			Provider: ProviderNone,
		},
		TokenCounter: TokenCounterConfig{
			Provider: ProviderApproximate,
			Encoding: compaction.DefaultTiktokenEncoding,
		},
		Storage: StorageConfig{
			Backend:     BackendFile,
			Dir:         DefaultFileDir,
			RedisPrefix: storage.DefaultRedisPrefix,
		},
		Tools: ToolsConfig{
			Timeout: tool.DefaultTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path, when given, and applies environment
// overrides. A missing file is an error only when path is set explicitly.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg, os.Getenv)
	cfg.Engine.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected and an empty
// document leaves cfg unchanged.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := getenv("ANTHROPIC_BASE_URL"); v != "" {
		cfg.Anthropic.BaseURL = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := getenv("AGENTCTX_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := getenv("AGENTCTX_SUMMARIZER"); v != "" {
		cfg.Summarizer.Provider = v
	}
	if v := getenv("AGENTCTX_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks the engine settings and the provider and backend choices.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if !slices.Contains([]string{ProviderNone, ProviderAnthropic, ProviderOpenAI}, c.Summarizer.Provider) {
		return fmt.Errorf("%w: unknown summarizer provider %q", ErrInvalidConfig, c.Summarizer.Provider)
	}
	if c.Summarizer.MaxTokens < 0 {
		return fmt.Errorf("%w: summarizer max_tokens must be non-negative, got %d", ErrInvalidConfig, c.Summarizer.MaxTokens)
	}
	if !slices.Contains([]string{ProviderApproximate, ProviderAnthropic, ProviderTiktoken}, c.TokenCounter.Provider) {
		return fmt.Errorf("%w: unknown token counter provider %q", ErrInvalidConfig, c.TokenCounter.Provider)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("%w: storage dir is required for the file backend", ErrInvalidConfig)
		}
	case BackendPostgres, BackendSQL:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: storage database_url (or DATABASE_URL) is required for the %s backend", ErrInvalidConfig, c.Storage.Backend)
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("%w: storage redis_url (or REDIS_URL) is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Storage.TTL < 0 {
		return fmt.Errorf("%w: storage ttl must be non-negative, got %s", ErrInvalidConfig, c.Storage.TTL)
	}
	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("%w: tools timeout must be positive, got %s", ErrInvalidConfig, c.Tools.Timeout)
	}
	return nil
}
