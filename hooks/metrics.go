package hooks

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/youssefsiam38/agentctx/types"
)

// MetricsHooks exports compaction metrics to Prometheus.
type MetricsHooks struct {
	passes          *prometheus.CounterVec
	strategyRuns    *prometheus.CounterVec
	events          *prometheus.CounterVec
	tokensSaved     prometheus.Counter
	passDuration    prometheus.Histogram
	summarizerUsage *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
}

// NewMetricsHooks registers the compaction metrics with reg.
func NewMetricsHooks(reg prometheus.Registerer) *MetricsHooks {
	factory := promauto.With(reg)

	return &MetricsHooks{
		passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentctx_compaction_passes_total",
				Help: "Compaction passes by outcome",
			},
			[]string{"outcome"}, // compressed, noop, over_budget
		),
		strategyRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentctx_strategy_runs_total",
				Help: "Strategy runs by strategy and status",
			},
			[]string{"strategy", "status"}, // applied, skipped, discarded, failed
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentctx_compression_events_total",
				Help: "Compression events recorded by kind",
			},
			[]string{"kind"},
		),
		tokensSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentctx_tokens_saved_total",
				Help: "Estimated tokens removed from working sets",
			},
		),
		passDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentctx_compaction_duration_seconds",
				Help:    "Duration of compaction passes",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		summarizerUsage: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentctx_summarizer_tokens_total",
				Help: "Tokens consumed by summarizer calls",
			},
			[]string{"direction"}, // input, output
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentctx_tool_calls_total",
				Help: "Tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"}, // ok, error
		),
	}
}

// Register attaches the metrics hooks to r.
func (h *MetricsHooks) Register(r *Registry) {
	r.OnStrategy(h.Strategy)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCall(h.ToolCall)
}

// Strategy records strategy metrics
func (h *MetricsHooks) Strategy(ctx context.Context, outcome *StrategyOutcome) error {
	status := "skipped"
	switch {
	case outcome.Err != nil:
		status = "failed"
	case outcome.Discarded:
		status = "discarded"
	case outcome.Applied:
		status = "applied"
	}
	h.strategyRuns.WithLabelValues(outcome.Strategy, status).Inc()
	return nil
}

// AfterCompaction records compaction metrics
func (h *MetricsHooks) AfterCompaction(ctx context.Context, result *types.CompactionResult) error {
	outcome := "noop"
	if result.Compressed {
		outcome = "compressed"
	}
	h.passes.WithLabelValues(outcome).Inc()
	if result.OverBudget {
		h.passes.WithLabelValues("over_budget").Inc()
	}

	if saved := result.OriginalTokens - result.CompactedTokens; saved > 0 {
		h.tokensSaved.Add(float64(saved))
	}
	h.passDuration.Observe(result.Duration.Seconds())

	for _, e := range result.Events {
		h.events.WithLabelValues(e.Kind).Inc()
		h.summarizerUsage.WithLabelValues("input").Add(float64(e.Metadata.InputTokens))
		h.summarizerUsage.WithLabelValues("output").Add(float64(e.Metadata.OutputTokens))
	}
	return nil
}

// ToolCall records tool call metrics
func (h *MetricsHooks) ToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.toolCalls.WithLabelValues(toolName, outcome).Inc()
	return nil
}
