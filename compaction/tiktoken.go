package compaction

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/youssefsiam38/agentctx/types"
)

// DefaultTiktokenEncoding is the BPE encoding used when none is given.
const DefaultTiktokenEncoding = "cl100k_base"

// TiktokenCounter counts tokens locally with a BPE encoding.
// The encoding is loaded on first use.
type TiktokenCounter struct {
	encoding string

	once sync.Once
	tkm  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenCounter creates a counter for the named encoding
// (e.g. "cl100k_base", "o200k_base").
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultTiktokenEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

// NewTiktokenCounterForModel creates a counter using the encoding of an OpenAI model.
func NewTiktokenCounterForModel(model string) (*TiktokenCounter, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenCountingFailed, err)
	}
	c := &TiktokenCounter{encoding: model, tkm: tkm}
	c.once.Do(func() {})
	return c, nil
}

// CountTokens implements TokenCounter.
func (c *TiktokenCounter) CountTokens(_ context.Context, messages []*types.Message) (int, error) {
	c.once.Do(func() {
		c.tkm, c.err = tiktoken.GetEncoding(c.encoding)
	})
	if c.err != nil {
		return 0, fmt.Errorf("%w: load encoding %s: %v", ErrTokenCountingFailed, c.encoding, c.err)
	}

	total := 0
	for _, msg := range messages {
		// Per-message framing overhead
		total += 4
		for _, block := range msg.Content {
			switch block.Type {
			case types.ContentTypeText, types.ContentTypeThinking:
				total += c.encode(block.Text)
			case types.ContentTypeToolUse:
				total += c.encode(block.ToolName) + c.encode(string(block.ToolInput)) + 10
			case types.ContentTypeToolResult:
				total += c.encode(block.ToolContent) + 10
			case types.ContentTypeImage, types.ContentTypeDocument:
				total += 200
			}
		}
	}
	return total, nil
}

func (c *TiktokenCounter) encode(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tkm.Encode(text, nil, nil))
}
