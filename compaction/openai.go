package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
)

// OpenAISummarizer summarizes with an OpenAI-compatible chat completions endpoint.
type OpenAISummarizer struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAISummarizer creates a summarizer backed by the given OpenAI client.
// A non-positive maxTokens selects DefaultSummarizerMaxTokens.
func NewOpenAISummarizer(client openai.Client, model string, maxTokens int) *OpenAISummarizer {
	if maxTokens <= 0 {
		maxTokens = DefaultSummarizerMaxTokens
	}
	return &OpenAISummarizer{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Summarize implements Summarizer.
func (s *OpenAISummarizer) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessagesToCompact
	}

	start := time.Now()
	userPrompt := BuildSummarizationUserPrompt(FormatMessages(req.Messages), req.Instructions)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxCompletionTokens: openai.Int(int64(s.maxTokens)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("%w: empty response from summarizer", ErrSummarizationFailed)
	}

	return &Summary{
		Text: resp.Choices[0].Message.Content,
		Usage: SummaryUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			Duration:     time.Since(start),
		},
	}, nil
}
