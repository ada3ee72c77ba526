package compaction

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicconv "github.com/youssefsiam38/agentctx/internal/anthropic"
	"github.com/youssefsiam38/agentctx/types"
)

// AnthropicTokenCounter counts tokens with Claude's token counting API,
// falling back to the character approximation once the API fails.
type AnthropicTokenCounter struct {
	client   *anthropic.Client
	model    string
	fallback bool // tracks if API failed and we're using fallback
}

// NewAnthropicTokenCounter creates a counter for the given model.
func NewAnthropicTokenCounter(client *anthropic.Client, model string) *AnthropicTokenCounter {
	return &AnthropicTokenCounter{
		client: client,
		model:  model,
	}
}

// CountTokens implements TokenCounter.
func (tc *AnthropicTokenCounter) CountTokens(ctx context.Context, messages []*types.Message) (int, error) {
	if tc.client != nil && !tc.fallback {
		total, err := tc.countWithAPI(ctx, messages)
		if err == nil {
			return total, nil
		}
		// API failed, fall back to approximation
		tc.fallback = true
	}

	return approximateMessages(messages), nil
}

// UsingFallback reports whether the counter has switched to the approximation.
func (tc *AnthropicTokenCounter) UsingFallback() bool {
	return tc.fallback
}

func (tc *AnthropicTokenCounter) countWithAPI(ctx context.Context, messages []*types.Message) (int, error) {
	params := anthropicconv.ConvertToAnthropicMessages(messages)
	if len(params) == 0 {
		return 0, nil
	}

	result, err := tc.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(tc.model),
		Messages: params,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTokenCountingFailed, err)
	}

	return int(result.InputTokens), nil
}
