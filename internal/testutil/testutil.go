// Package testutil provides test utilities for agentctx
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/youssefsiam38/agentctx/types"
)

// TestDB wraps a PostgreSQL connection pool for testing
type TestDB struct {
	Pool *pgxpool.Pool
	URL  string
}

// NewTestDB creates a test database connection from DATABASE_URL env var.
// The test is skipped if DATABASE_URL is not set.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to ping database: %v", err)
	}

	return &TestDB{Pool: pool, URL: dbURL}
}

// Close closes the database connection
func (db *TestDB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// CleanTables truncates all agentctx tables for test isolation
func (db *TestDB) CleanTables(ctx context.Context) error {
	tables := []string{
		"agentctx_compression_events",
		"agentctx_offload",
		"agentctx_messages",
		"agentctx_snapshots",
	}

	for _, table := range tables {
		_, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// RequireIntegration skips the test if not running integration tests
func RequireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}
}

// NewTestRedis connects to REDIS_URL, skipping the test when it is unset.
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Fatalf("Failed to ping redis: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}

// Conversation builds a message sequence from a compact script. Each entry
// is "role:kind:text" where kind is one of text, final, tool_use,
// tool_result. Tool ids pair tool_use with the next tool_result.
func Conversation(script ...string) []*types.Message {
	msgs := make([]*types.Message, 0, len(script))
	toolSeq := 0
	for _, line := range script {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			panic(fmt.Sprintf("testutil: bad script line %q", line))
		}
		role, kind, text := types.Role(parts[0]), parts[1], parts[2]

		msg := &types.Message{
			ID:        types.NewMessageID(),
			Role:      role,
			CreatedAt: time.Now(),
		}
		switch kind {
		case "text", "final":
			msg.Content = []types.ContentBlock{{Type: types.ContentTypeText, Text: text}}
		case "tool_use":
			toolSeq++
			msg.Content = []types.ContentBlock{{
				Type:      types.ContentTypeToolUse,
				ToolUseID: fmt.Sprintf("toolu_%d", toolSeq),
				ToolName:  "search",
				ToolInput: mustJSON(map[string]string{"query": text}),
			}}
		case "tool_result":
			msg.Content = []types.ContentBlock{{
				Type:         types.ContentTypeToolResult,
				ToolResultID: fmt.Sprintf("toolu_%d", toolSeq),
				ToolContent:  text,
			}}
		default:
			panic(fmt.Sprintf("testutil: unknown kind %q", kind))
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
