package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/youssefsiam38/agentctx/types"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
}

func TestOnBeforeCompaction(t *testing.T) {
	r := NewRegistry()
	var gotSession string
	var gotMessages, gotTokens int

	r.OnBeforeCompaction(func(ctx context.Context, sessionID string, messages, tokens int) error {
		gotSession, gotMessages, gotTokens = sessionID, messages, tokens
		return nil
	})

	if err := r.TriggerBeforeCompaction(context.Background(), "s1", 12, 3400); err != nil {
		t.Errorf("TriggerBeforeCompaction returned error: %v", err)
	}
	if gotSession != "s1" || gotMessages != 12 || gotTokens != 3400 {
		t.Errorf("hook got (%s, %d, %d), want (s1, 12, 3400)", gotSession, gotMessages, gotTokens)
	}
}

func TestOnStrategy(t *testing.T) {
	r := NewRegistry()
	var got *StrategyOutcome

	r.OnStrategy(func(ctx context.Context, outcome *StrategyOutcome) error {
		got = outcome
		return nil
	})

	want := &StrategyOutcome{Strategy: "tool_runs", Applied: true}
	if err := r.TriggerStrategy(context.Background(), want); err != nil {
		t.Errorf("TriggerStrategy returned error: %v", err)
	}
	if got != want {
		t.Error("hook did not receive the outcome")
	}
}

func TestOnToolCall(t *testing.T) {
	r := NewRegistry()
	var capturedName, capturedOutput string

	r.OnToolCall(func(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
		capturedName = toolName
		capturedOutput = output
		return nil
	})

	if err := r.TriggerToolCall(context.Background(), "context_reload", json.RawMessage(`{}`), "ok", nil); err != nil {
		t.Errorf("TriggerToolCall returned error: %v", err)
	}
	if capturedName != "context_reload" || capturedOutput != "ok" {
		t.Errorf("hook captured (%s, %s), want (context_reload, ok)", capturedName, capturedOutput)
	}
}

func TestHookErrorStopsChain(t *testing.T) {
	r := NewRegistry()
	hookErr := errors.New("stop")
	secondCalled := false

	r.OnAfterCompaction(func(ctx context.Context, result *types.CompactionResult) error {
		return hookErr
	})
	r.OnAfterCompaction(func(ctx context.Context, result *types.CompactionResult) error {
		secondCalled = true
		return nil
	})

	err := r.TriggerAfterCompaction(context.Background(), &types.CompactionResult{})
	if !errors.Is(err, hookErr) {
		t.Errorf("TriggerAfterCompaction error = %v, want %v", err, hookErr)
	}
	if secondCalled {
		t.Error("second hook should not run after an error")
	}
}

func TestConcurrentRegistration(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.OnStrategy(func(ctx context.Context, outcome *StrategyOutcome) error { return nil })
		}()
		go func() {
			defer wg.Done()
			_ = r.TriggerStrategy(context.Background(), &StrategyOutcome{})
		}()
	}
	wg.Wait()
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHooks(log.New(&buf, "", 0)).Verbose()
	r := NewRegistry()
	h.Register(r)

	ctx := context.Background()
	_ = r.TriggerBeforeCompaction(ctx, "s1", 10, 500)
	_ = r.TriggerStrategy(ctx, &StrategyOutcome{
		Strategy:     "offload_protected",
		Applied:      true,
		TokensBefore: 500,
		TokensAfter:  200,
		Events:       []*types.CompressionEvent{{ID: "e1", Kind: "offload_protected", CompressedCount: 1}},
	})
	_ = r.TriggerAfterCompaction(ctx, &types.CompactionResult{
		SessionID:       "s1",
		Compressed:      true,
		OriginalTokens:  500,
		CompactedTokens: 200,
		OverBudget:      true,
	})

	out := buf.String()
	for _, want := range []string{
		"[agentctx] Starting context compaction for session s1",
		"Strategy offload_protected applied",
		"Event e1",
		"60.0% reduction",
		"still over budget",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewMetricsHooks(reg)
	r := NewRegistry()
	h.Register(r)

	ctx := context.Background()
	_ = r.TriggerStrategy(ctx, &StrategyOutcome{Strategy: "tool_runs", Applied: true})
	_ = r.TriggerStrategy(ctx, &StrategyOutcome{Strategy: "current_round", Err: errors.New("timeout")})
	_ = r.TriggerAfterCompaction(ctx, &types.CompactionResult{
		Compressed:      true,
		OriginalTokens:  1000,
		CompactedTokens: 400,
		Duration:        2 * time.Second,
		Events: []*types.CompressionEvent{
			{Kind: "tool_runs", Metadata: types.EventMetadata{InputTokens: 300, OutputTokens: 50}},
			{Kind: "tool_runs", Metadata: types.EventMetadata{InputTokens: 200, OutputTokens: 40}},
		},
	})
	_ = r.TriggerToolCall(ctx, "context_reload", json.RawMessage(`{}`), "Reloaded 1 message(s)", nil)
	_ = r.TriggerToolCall(ctx, "context_reload", json.RawMessage(`{}`), "", errors.New("not found"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"applied runs", testutil.ToFloat64(h.strategyRuns.WithLabelValues("tool_runs", "applied")), 1},
		{"failed runs", testutil.ToFloat64(h.strategyRuns.WithLabelValues("current_round", "failed")), 1},
		{"compressed passes", testutil.ToFloat64(h.passes.WithLabelValues("compressed")), 1},
		{"tokens saved", testutil.ToFloat64(h.tokensSaved), 600},
		{"events", testutil.ToFloat64(h.events.WithLabelValues("tool_runs")), 2},
		{"summarizer input", testutil.ToFloat64(h.summarizerUsage.WithLabelValues("input")), 500},
		{"summarizer output", testutil.ToFloat64(h.summarizerUsage.WithLabelValues("output")), 90},
		{"tool calls ok", testutil.ToFloat64(h.toolCalls.WithLabelValues("context_reload", "ok")), 1},
		{"tool calls error", testutil.ToFloat64(h.toolCalls.WithLabelValues("context_reload", "error")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(h.passDuration); n != 1 {
		t.Errorf("CollectAndCount(passDuration) = %d, want 1", n)
	}
}
