package compaction

import (
	"context"

	"github.com/youssefsiam38/agentctx/types"
)

// TokenCounter estimates the token footprint of a message sequence.
// Implementations must be deterministic and monotonic: adding content never
// lowers the estimate.
type TokenCounter interface {
	CountTokens(ctx context.Context, messages []*types.Message) (int, error)
}

// ApproximateCounter estimates tokens from character counts (~4 chars per token).
// It never fails and is the engine default.
type ApproximateCounter struct{}

// CountTokens implements TokenCounter.
func (ApproximateCounter) CountTokens(_ context.Context, messages []*types.Message) (int, error) {
	return approximateMessages(messages), nil
}

func approximateMessages(messages []*types.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessageTokens(msg)
	}
	return total
}

// EstimateMessageTokens estimates tokens for a single message using character approximation.
func EstimateMessageTokens(msg *types.Message) int {
	if msg == nil {
		return 0
	}

	// Add overhead for message structure (~4 tokens for role, etc.)
	total := 4

	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText, types.ContentTypeThinking:
			total += ApproximateTokens(block.Text)
		case types.ContentTypeToolUse:
			// Tool name + ID overhead
			total += ApproximateTokens(block.ToolName) + 10
			if len(block.ToolInput) > 0 {
				total += ApproximateTokens(string(block.ToolInput))
			}
		case types.ContentTypeToolResult:
			total += 10
			total += ApproximateTokens(block.ToolContent)
		case types.ContentTypeImage, types.ContentTypeDocument:
			// Conservative; small images are ~85 tokens, large ones 1600+
			total += 200
		}
	}

	return total
}

// ApproximateTokens estimates token count from character count.
// Uses the approximation of ~4 characters per token for English text.
func ApproximateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
