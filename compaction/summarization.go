package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicconv "github.com/youssefsiam38/agentctx/internal/anthropic"
	"github.com/youssefsiam38/agentctx/types"
)

// DefaultSummarizerMaxTokens is the response budget used by the provider summarizers.
const DefaultSummarizerMaxTokens = 4096

// SummaryRequest is a single summarization call.
type SummaryRequest struct {
	// SystemPrompt frames the summarization task.
	SystemPrompt string

	// Messages are the messages to summarize.
	Messages []*types.Message

	// Instructions is appended after the formatted messages. It already
	// carries the plan hint, if any, followed by the final instruction.
	Instructions string
}

// Summary is the summarizer's answer.
type Summary struct {
	Text  string
	Usage SummaryUsage
}

// SummaryUsage reports the cost of a summarizer call.
type SummaryUsage struct {
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Summarizer produces a condensed text from a message span. The engine
// bounds every call with Config.SummarizerTimeout; implementations must
// honor ctx cancellation.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (*Summary, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, req SummaryRequest) (*Summary, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	return f(ctx, req)
}

// AnthropicSummarizer summarizes with Claude's streaming Messages API.
type AnthropicSummarizer struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropicSummarizer creates a summarizer backed by the given Anthropic client.
// A non-positive maxTokens selects DefaultSummarizerMaxTokens.
func NewAnthropicSummarizer(client *anthropic.Client, model string, maxTokens int) *AnthropicSummarizer {
	if maxTokens <= 0 {
		maxTokens = DefaultSummarizerMaxTokens
	}
	return &AnthropicSummarizer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Summarize implements Summarizer.
func (s *AnthropicSummarizer) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessagesToCompact
	}

	start := time.Now()
	userPrompt := BuildSummarizationUserPrompt(FormatMessages(req.Messages), req.Instructions)

	stream := s.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	defer stream.Close()

	// Accumulate the streamed response
	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("%w: failed to accumulate stream: %v", ErrSummarizationFailed, err)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v (retryable=%t)", ErrSummarizationFailed, err, anthropicconv.IsRetryableError(err))
	}

	text := anthropicconv.ExtractText(&message)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response from summarizer", ErrSummarizationFailed)
	}

	return &Summary{
		Text: text,
		Usage: SummaryUsage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			Duration:     time.Since(start),
		},
	}, nil
}
