package compaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/youssefsiam38/agentctx/types"
)

// fakeSummarizer returns a fixed text and records every request.
type fakeSummarizer struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []SummaryRequest
}

func newFakeSummarizer() *fakeSummarizer {
	return &fakeSummarizer{text: "condensed"}
}

func (s *fakeSummarizer) Summarize(ctx context.Context, req SummaryRequest) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &Summary{
		Text:  s.text,
		Usage: SummaryUsage{InputTokens: 100, OutputTokens: 10, Duration: time.Millisecond},
	}, nil
}

func (s *fakeSummarizer) calls() []SummaryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SummaryRequest(nil), s.requests...)
}

// failingCounter always errors, forcing the approximation.
type failingCounter struct{}

func (failingCounter) CountTokens(context.Context, []*types.Message) (int, error) {
	return 0, errors.New("counter unavailable")
}

// funcStrategy lets tests plug arbitrary behavior into the chain.
type funcStrategy struct {
	name Strategy
	fn   func(ctx context.Context, in *StrategyInput) (*StrategyResult, error)
}

func (s *funcStrategy) Name() Strategy { return s.name }

func (s *funcStrategy) Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error) {
	return s.fn(ctx, in)
}

// convo builds test conversations with paired tool ids.
type convo struct {
	msgs []*types.Message
	seq  int
}

func (c *convo) user(text string) *convo {
	c.msgs = append(c.msgs, types.NewTextMessage(types.RoleUser, text))
	return c
}

func (c *convo) final(text string) *convo {
	c.msgs = append(c.msgs, types.NewTextMessage(types.RoleAssistant, text))
	return c
}

// call appends a tool call without its result.
func (c *convo) call(tool, query string) *convo {
	c.seq++
	input, _ := json.Marshal(map[string]string{"query": query})
	c.msgs = append(c.msgs, &types.Message{
		ID:   types.NewMessageID(),
		Role: types.RoleAssistant,
		Content: []types.ContentBlock{{
			Type:      types.ContentTypeToolUse,
			ToolUseID: fmt.Sprintf("toolu_%d", c.seq),
			ToolName:  tool,
			ToolInput: input,
		}},
		CreatedAt: time.Now(),
	})
	return c
}

// result answers the latest call.
func (c *convo) result(content string) *convo {
	c.msgs = append(c.msgs, &types.Message{
		ID:   types.NewMessageID(),
		Role: types.RoleUser,
		Content: []types.ContentBlock{{
			Type:         types.ContentTypeToolResult,
			ToolResultID: fmt.Sprintf("toolu_%d", c.seq),
			ToolContent:  content,
		}},
		CreatedAt: time.Now(),
	})
	return c
}

func (c *convo) pair(tool, query, content string) *convo {
	return c.call(tool, query).result(content)
}

func (c *convo) pairs(n int) *convo {
	for i := 0; i < n; i++ {
		c.pair("search", fmt.Sprintf("q%d", i), fmt.Sprintf("r%d", i))
	}
	return c
}

func testConfig(mutate func(*Config)) *Config {
	c := DefaultConfig()
	if mutate != nil {
		mutate(c)
	}
	return c
}

func newTestInput(msgs []*types.Message, cfg *Config, s Summarizer) *StrategyInput {
	c := cfg.clone()
	c.ApplyDefaults()
	return &StrategyInput{
		SessionID:  "test-session",
		Original:   msgs,
		Working:    msgs,
		Config:     &c,
		Window:     ComputeWindow(msgs, c.LastKeep),
		Summarizer: s,
		Counter:    ApproximateCounter{},
	}
}

func ids(msgs []*types.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func bigText(n int) string {
	return strings.Repeat("x", n)
}
