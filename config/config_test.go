package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/youssefsiam38/agentctx/compaction"
	"github.com/youssefsiam38/agentctx/hooks"
	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/tool"
	"github.com/youssefsiam38/agentctx/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"DATABASE_URL", "REDIS_URL", "AGENTCTX_STORAGE", "AGENTCTX_SUMMARIZER", "AGENTCTX_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentctx.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Storage.Dir != DefaultFileDir {
		t.Errorf("Storage = %+v, want file backend in %s", cfg.Storage, DefaultFileDir)
	}
	if cfg.Engine.LastKeep != compaction.DefaultLastKeep {
		t.Errorf("Engine.LastKeep = %d, want %d", cfg.Engine.LastKeep, compaction.DefaultLastKeep)
	}
	if cfg.Summarizer.Provider != ProviderNone {
		t.Errorf("Summarizer.Provider = %s, want none", cfg.Summarizer.Provider)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
engine:
  msg_threshold: 40
  max_tokens: 200000
  token_ratio: 0.5
  last_keep: 10
  summarizer_timeout: 15s
  prompts:
    tool_runs: "Summarize tools tersely."
summarizer:
  provider: openai
  model: gpt-4.1-mini
storage:
  backend: redis
  redis_url: redis://localhost:6379/0
  ttl: 24h
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	e := cfg.Engine
	if e.MsgThreshold != 40 || e.MaxTokens != 200000 || e.TokenRatio != 0.5 || e.LastKeep != 10 {
		t.Errorf("Engine = %+v, want file values", e)
	}
	if e.SummarizerTimeout != 15*time.Second {
		t.Errorf("Engine.SummarizerTimeout = %s, want 15s", e.SummarizerTimeout)
	}
	if e.Prompts.ToolRuns != "Summarize tools tersely." {
		t.Errorf("Engine.Prompts.ToolRuns = %q", e.Prompts.ToolRuns)
	}
	if e.LargePayloadChars != compaction.DefaultLargePayloadChars {
		t.Errorf("Engine.LargePayloadChars = %d, want default", e.LargePayloadChars)
	}
	if cfg.Summarizer.Provider != ProviderOpenAI || cfg.Summarizer.Model != "gpt-4.1-mini" {
		t.Errorf("Summarizer = %+v", cfg.Summarizer)
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Storage.TTL != 24*time.Hour {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Storage.RedisPrefix != storage.DefaultRedisPrefix {
		t.Errorf("Storage.RedisPrefix = %q, want default", cfg.Storage.RedisPrefix)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-oai")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("AGENTCTX_STORAGE", "postgres")
	t.Setenv("AGENTCTX_SUMMARIZER", "anthropic")

	path := writeConfig(t, `
anthropic:
  api_key: from-file
storage:
  database_url: postgres://file/db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant" || cfg.OpenAI.APIKey != "sk-oai" {
		t.Errorf("API keys = %q/%q, want env values", cfg.Anthropic.APIKey, cfg.OpenAI.APIKey)
	}
	if cfg.Storage.Backend != BackendPostgres || cfg.Storage.DatabaseURL != "postgres://env/db" {
		t.Errorf("Storage = %+v, want env postgres", cfg.Storage)
	}
	if cfg.Summarizer.Provider != ProviderAnthropic {
		t.Errorf("Summarizer.Provider = %s, want anthropic", cfg.Summarizer.Provider)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "unknown key", body: "engine:\n  no_such_field: 1\n"},
		{name: "bad yaml", body: "engine: [\n"},
		{name: "engine out of range", body: "engine:\n  token_ratio: 1.5\n", wantErr: compaction.ErrInvalidConfig},
		{name: "unknown backend", body: "storage:\n  backend: s3\n", wantErr: ErrInvalidConfig},
		{name: "postgres without url", body: "storage:\n  backend: postgres\n", wantErr: ErrInvalidConfig},
		{name: "redis without url", body: "storage:\n  backend: redis\n", wantErr: ErrInvalidConfig},
		{name: "unknown summarizer", body: "summarizer:\n  provider: gemini\n", wantErr: ErrInvalidConfig},
		{name: "unknown counter", body: "token_counter:\n  provider: words\n", wantErr: ErrInvalidConfig},
		{name: "negative ttl", body: "storage:\n  ttl: -1s\n", wantErr: ErrInvalidConfig},
		{name: "zero tool timeout", body: "tools:\n  timeout: 0s\n", wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing file) error = nil, want error")
	}
}

func TestParse_Empty(t *testing.T) {
	cfg := DefaultConfig()
	if err := Parse(nil, cfg); err != nil {
		t.Errorf("Parse(empty) error = %v", err)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("Parse(empty) changed Storage.Backend to %s", cfg.Storage.Backend)
	}
}

func TestBuilders(t *testing.T) {
	cfg := DefaultConfig()

	if s := cfg.NewSummarizer(); s != nil {
		t.Errorf("NewSummarizer(none) = %T, want nil", s)
	}
	cfg.Summarizer.Provider = ProviderOpenAI
	if _, ok := cfg.NewSummarizer().(*compaction.OpenAISummarizer); !ok {
		t.Errorf("NewSummarizer(openai) = %T", cfg.NewSummarizer())
	}
	cfg.Summarizer.Provider = ProviderAnthropic
	if _, ok := cfg.NewSummarizer().(*compaction.AnthropicSummarizer); !ok {
		t.Errorf("NewSummarizer(anthropic) = %T", cfg.NewSummarizer())
	}

	tests := []struct {
		provider string
		check    func(compaction.TokenCounter) bool
	}{
		{ProviderApproximate, func(c compaction.TokenCounter) bool { _, ok := c.(compaction.ApproximateCounter); return ok }},
		{ProviderTiktoken, func(c compaction.TokenCounter) bool { _, ok := c.(*compaction.TiktokenCounter); return ok }},
		{ProviderAnthropic, func(c compaction.TokenCounter) bool { _, ok := c.(*compaction.AnthropicTokenCounter); return ok }},
	}
	for _, tt := range tests {
		cfg.TokenCounter.Provider = tt.provider
		if got := cfg.NewTokenCounter(); !tt.check(got) {
			t.Errorf("NewTokenCounter(%s) = %T", tt.provider, got)
		}
	}

	if opts := cfg.EngineOptions(nil); len(opts) != 2 {
		t.Errorf("EngineOptions() = %d options, want counter and summarizer", len(opts))
	}
}

func TestNewToolExecutor(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Engine.ReloadToolName = "recall"
	cfg.Tools.Timeout = time.Second

	offload := compaction.NewOffloadStore()
	offload.Offload("off-1", []*types.Message{types.NewTextMessage(types.RoleUser, "archived text")})

	var calls []string
	h := hooks.NewRegistry()
	h.OnToolCall(func(ctx context.Context, name string, input json.RawMessage, output string, err error) error {
		calls = append(calls, name)
		return nil
	})

	executor, registry, err := cfg.NewToolExecutor(offload, h)
	if err != nil {
		t.Fatalf("NewToolExecutor() error = %v", err)
	}
	if names := registry.List(); len(names) != 1 || names[0] != "recall" {
		t.Fatalf("List() = %v, want [recall]", names)
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "reload", input: `{"working_context_offload_uuid":"off-1"}`, want: "archived text"},
		{name: "unknown id", input: `{"working_context_offload_uuid":"off-2"}`, wantErr: compaction.ErrOffloadNotFound},
		{name: "missing id", input: `{}`, wantErr: tool.ErrInvalidInput},
		{name: "empty id", input: `{"working_context_offload_uuid":""}`, wantErr: tool.ErrInvalidInput},
		{name: "wrong type", input: `{"working_context_offload_uuid":7}`, wantErr: tool.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := executor.Execute(ctx, tool.Call{Name: "recall", Input: json.RawMessage(tt.input)})
			if tt.wantErr != nil {
				if !errors.Is(res.Err, tt.wantErr) {
					t.Errorf("Execute() error = %v, want %v", res.Err, tt.wantErr)
				}
				return
			}
			if res.Err != nil {
				t.Fatalf("Execute() error = %v", res.Err)
			}
			if !strings.Contains(res.Output, tt.want) {
				t.Errorf("Execute() output = %q, want it to contain %q", res.Output, tt.want)
			}
		})
	}

	if len(calls) != len(tests) {
		t.Errorf("tool call hooks fired %d times, want %d", len(calls), len(tests))
	}

	res := executor.Execute(ctx, tool.Call{Name: compaction.DefaultReloadToolName, Input: json.RawMessage(`{}`)})
	if !errors.Is(res.Err, tool.ErrToolNotFound) {
		t.Errorf("Execute(default name) error = %v, want ErrToolNotFound", res.Err)
	}
}

func TestOpenStore_Local(t *testing.T) {
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	store, closeFn, err := cfg.OpenStore(ctx)
	if err != nil {
		t.Fatalf("OpenStore(file) error = %v", err)
	}
	defer closeFn()
	if _, ok := store.(*storage.FileStore); !ok {
		t.Errorf("OpenStore(file) = %T, want *storage.FileStore", store)
	}

	cfg.Storage.Backend = BackendMemory
	store, _, err = cfg.OpenStore(ctx)
	if err != nil {
		t.Fatalf("OpenStore(memory) error = %v", err)
	}
	if _, ok := store.(*storage.MemoryStore); !ok {
		t.Errorf("OpenStore(memory) = %T, want *storage.MemoryStore", store)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	logger := cfg.NewLogger(os.Stderr)
	if logger.Enabled(context.Background(), -4) {
		t.Error("NewLogger(warn) enables debug")
	}
	if !logger.Enabled(context.Background(), 4) {
		t.Error("NewLogger(warn) disables warn")
	}
}
