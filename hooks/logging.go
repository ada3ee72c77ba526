package hooks

import (
	"context"
	"encoding/json"
	"log"

	"github.com/youssefsiam38/agentctx/types"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger  *log.Logger
	verbose bool
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// Verbose makes the hooks log every strategy and event.
func (h *LoggingHooks) Verbose() *LoggingHooks {
	h.verbose = true
	return h
}

// Register attaches all logging hooks to r.
func (h *LoggingHooks) Register(r *Registry) {
	r.OnBeforeCompaction(h.BeforeCompaction)
	r.OnStrategy(h.Strategy)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnToolCall(h.ToolCall)
}

// BeforeCompaction logs before context compaction
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, sessionID string, messages, tokens int) error {
	h.logger.Printf("[agentctx] Starting context compaction for session %s (%d messages, ~%d tokens)",
		sessionID, messages, tokens)
	return nil
}

// Strategy logs the outcome of one strategy
func (h *LoggingHooks) Strategy(ctx context.Context, outcome *StrategyOutcome) error {
	switch {
	case outcome.Err != nil:
		h.logger.Printf("[agentctx] Strategy %s failed: %v", outcome.Strategy, outcome.Err)
	case outcome.Discarded:
		h.logger.Printf("[agentctx] Strategy %s discarded: %d → %d tokens",
			outcome.Strategy, outcome.TokensBefore, outcome.TokensAfter)
	case outcome.Applied:
		h.logger.Printf("[agentctx] Strategy %s applied: %d → %d tokens, %d events",
			outcome.Strategy, outcome.TokensBefore, outcome.TokensAfter, len(outcome.Events))
	case h.verbose:
		h.logger.Printf("[agentctx][VERBOSE] Strategy %s: nothing to compact", outcome.Strategy)
	}

	if h.verbose {
		for _, e := range outcome.Events {
			h.logger.Printf("[agentctx][VERBOSE] Event %s: kind=%s count=%d produced=%s offload=%s",
				e.ID, e.Kind, e.CompressedCount, e.ProducedMessageID, e.OffloadID)
		}
	}
	return nil
}

// AfterCompaction logs after context compaction
func (h *LoggingHooks) AfterCompaction(ctx context.Context, result *types.CompactionResult) error {
	reduction := float64(0)
	if result.OriginalTokens > 0 {
		reduction = float64(result.OriginalTokens-result.CompactedTokens) / float64(result.OriginalTokens) * 100
	}

	h.logger.Printf("[agentctx] Compaction complete: %d → %d tokens (%.1f%% reduction, %d → %d messages, strategies: %v)",
		result.OriginalTokens, result.CompactedTokens, reduction, result.MessagesBefore, result.MessagesAfter, result.StrategiesRun)
	if result.OverBudget {
		h.logger.Printf("[agentctx] Session %s is still over budget after compaction", result.SessionID)
	}
	return nil
}

// ToolCall logs tool execution
func (h *LoggingHooks) ToolCall(ctx context.Context, toolName string, input json.RawMessage, output string, err error) error {
	if err != nil {
		h.logger.Printf("[agentctx] Tool '%s' failed: %v", toolName, err)
		return nil
	}

	outputPreview := output
	if len(outputPreview) > 100 {
		outputPreview = outputPreview[:100] + "..."
	}
	h.logger.Printf("[agentctx] Tool '%s' succeeded: %s", toolName, outputPreview)
	return nil
}
