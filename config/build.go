package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/tool"
	"github.com/youssefsiam38/agentctx/tool/builtin"
)

// Migrator is implemented by stores that own a database schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

func (c *Config) anthropicClient() *anthropic.Client {
	var opts []anthropicoption.RequestOption
	if c.Anthropic.APIKey != "" {
		opts = append(opts, anthropicoption.WithAPIKey(c.Anthropic.APIKey))
	}
	if c.Anthropic.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(c.Anthropic.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &client
}

func (c *Config) openAIClient() openai.Client {
	var opts []openaioption.RequestOption
	if c.OpenAI.APIKey != "" {
		opts = append(opts, openaioption.WithAPIKey(c.OpenAI.APIKey))
	}
	if c.OpenAI.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(c.OpenAI.BaseURL))
	}
	return openai.NewClient(opts...)
}

// NewSummarizer builds the configured summarizer. It returns nil for the
// "none" provider, which disables the summarizing strategies.
func (c *Config) NewSummarizer() compaction.Summarizer {
	switch c.Summarizer.Provider {
	case ProviderAnthropic:
		model := c.Summarizer.Model
		if model == "" {
			model = DefaultAnthropicModel
		}
		return compaction.NewAnthropicSummarizer(c.anthropicClient(), model, c.Summarizer.MaxTokens)
	case ProviderOpenAI:
		model := c.Summarizer.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		return compaction.NewOpenAISummarizer(c.openAIClient(), model, c.Summarizer.MaxTokens)
	default:
		return nil
	}
}

// NewTokenCounter builds the configured token counter.
func (c *Config) NewTokenCounter() compaction.TokenCounter {
	switch c.TokenCounter.Provider {
	case ProviderAnthropic:
		model := c.TokenCounter.Model
		if model == "" {
			model = DefaultAnthropicModel
		}
		return compaction.NewAnthropicTokenCounter(c.anthropicClient(), model)
	case ProviderTiktoken:
		return compaction.NewTiktokenCounter(c.TokenCounter.Encoding)
	default:
		return compaction.ApproximateCounter{}
	}
}

// EngineOptions returns the engine options the configuration implies.
func (c *Config) EngineOptions(logger compaction.Logger) []compaction.Option {
	opts := []compaction.Option{
		compaction.WithTokenCounter(c.NewTokenCounter()),
	}
	if s := c.NewSummarizer(); s != nil {
		opts = append(opts, compaction.WithSummarizer(s))
	}
	if logger != nil {
		opts = append(opts, compaction.WithLogger(logger))
	}
	return opts
}

// NewToolExecutor builds the agent toolset over r: the context_reload tool
// under Engine.ReloadToolName, run with the configured timeout. Tool calls
// are reported to h when it is non-nil.
func (c *Config) NewToolExecutor(r builtin.Reloader, h *hooks.Registry) (*tool.Executor, *tool.Registry, error) {
	registry := tool.NewRegistry(h)
	if err := registry.Register(builtin.NewContextReloadTool(r).WithName(c.Engine.ReloadToolName)); err != nil {
		return nil, nil, err
	}

	executor := tool.NewExecutor(registry)
	executor.SetTimeout(c.Tools.Timeout)
	executor.SetParallel(c.Tools.Parallel)
	return executor, registry, nil
}

// OpenStore opens the configured snapshot store. The returned close
// function releases its connections.
func (c *Config) OpenStore(ctx context.Context) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Storage.Backend {
	case BackendMemory:
		return storage.NewMemoryStore(), noop, nil

	case BackendFile:
		store, err := storage.NewFileStore(c.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil

	case BackendPostgres:
		pool, err := pgxpool.New(ctx, c.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return storage.NewPostgresStore(pool), func() error { pool.Close(); return nil }, nil

	case BackendSQL:
		store, err := storage.OpenSQLStore(ctx, c.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case BackendRedis:
		opts, err := redis.ParseURL(c.Storage.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return storage.NewRedisStore(client, c.Storage.RedisPrefix, c.Storage.TTL), client.Close, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
}

// NewLogger builds a slog logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Log.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
