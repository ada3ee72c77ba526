package compaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/youssefsiam38/agentctx/types"
)

// Strategy names a compaction strategy. It is also the Kind of the
// events the strategy records.
type Strategy string

const (
	// StrategyToolRuns summarizes long runs of consecutive tool messages.
	StrategyToolRuns Strategy = "tool_runs"

	// StrategyOffloadProtected off-loads large payloads outside the lastKeep
	// tail and before the latest final response.
	StrategyOffloadProtected Strategy = "offload_protected"

	// StrategyOffloadUnprotected off-loads large payloads before the latest
	// final response, ignoring the lastKeep tail.
	StrategyOffloadUnprotected Strategy = "offload_unprotected"

	// StrategyHistoricalRounds summarizes finished conversation rounds.
	StrategyHistoricalRounds Strategy = "historical_rounds"

	// StrategyCurrentRoundLarge summarizes oversized current-round messages in place.
	StrategyCurrentRoundLarge Strategy = "current_round_large"

	// StrategyCurrentRound merges the current-round tool calls into one summary.
	StrategyCurrentRound Strategy = "current_round"
)

// StrategyExecutor defines the interface for compaction strategy implementations.
// Execute must not mutate the input; it returns a new working set instead.
// A strategy with nothing to do returns a result with Applied=false.
type StrategyExecutor interface {
	Name() Strategy
	Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error)
}

// DefaultStrategies returns the strategies in the order the engine tries them,
// from least to most lossy.
func DefaultStrategies() []StrategyExecutor {
	return []StrategyExecutor{
		&ToolRunsStrategy{},
		&OffloadStrategy{KeepTail: true},
		&OffloadStrategy{KeepTail: false},
		&HistoricalRoundsStrategy{},
		&CurrentRoundLargeStrategy{},
		&CurrentRoundStrategy{},
	}
}

// StrategyInput is everything a strategy may read.
type StrategyInput struct {
	SessionID  string
	Original   []*types.Message
	Working    []*types.Message
	Config     *Config
	Window     ProtectionWindow
	PlanHint   string
	Summarizer Summarizer
	Counter    TokenCounter
	Now        func() time.Time
}

// OffloadEntry is an offload write requested by a strategy.
type OffloadEntry struct {
	ID       string
	Messages []*types.Message
}

// StrategyResult contains the result of executing a compaction strategy.
type StrategyResult struct {
	// Messages is the new working set.
	Messages []*types.Message

	// Events records one entry per replaced span.
	Events []*types.CompressionEvent

	// Offloads holds the originals to archive.
	Offloads []OffloadEntry

	// Applied is false when the strategy found nothing to do.
	Applied bool
}

func (in *StrategyInput) notApplied() *StrategyResult {
	return &StrategyResult{Messages: in.Working}
}

func (in *StrategyInput) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

// countTokens never fails; a counter error degrades to the approximation.
func (in *StrategyInput) countTokens(ctx context.Context, messages []*types.Message) int {
	if in.Counter != nil {
		if n, err := in.Counter.CountTokens(ctx, messages); err == nil {
			return n
		}
	}
	return approximateMessages(messages)
}

// summarize calls the summarizer under Config.SummarizerTimeout. The call
// runs on its own goroutine so a summarizer that ignores ctx cannot stall
// the engine past the deadline.
func (in *StrategyInput) summarize(ctx context.Context, system string, messages []*types.Message, final string) (*Summary, error) {
	if in.Summarizer == nil {
		return nil, fmt.Errorf("%w: no summarizer configured", ErrSummarizationFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, in.Config.SummarizerTimeout)
	defer cancel()

	req := SummaryRequest{
		SystemPrompt: system,
		Messages:     messages,
		Instructions: composeInstructions(in.PlanHint, final),
	}

	type outcome struct {
		summary *Summary
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("summarizer panic: %v", r)}
			}
		}()
		s, err := in.Summarizer.Summarize(ctx, req)
		done <- outcome{summary: s, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrSummarizationFailed, ctx.Err())
	}

	if o.err != nil {
		if errors.Is(o.err, ErrSummarizationFailed) {
			return nil, o.err
		}
		return nil, fmt.Errorf("%w: %v", ErrSummarizationFailed, o.err)
	}
	if o.summary == nil || strings.TrimSpace(o.summary.Text) == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrSummarizationFailed)
	}
	if o.summary.Usage.Duration == 0 {
		o.summary.Usage.Duration = time.Since(start)
	}
	return o.summary, nil
}

// isPlanRelated reports whether any message calls a plan tool.
func (in *StrategyInput) isPlanRelated(messages []*types.Message) bool {
	for _, msg := range messages {
		for _, name := range msg.ToolNames() {
			if in.Config.isPlanTool(name) {
				return true
			}
		}
	}
	return false
}

// replacement swaps Working[start:end] for message.
type replacement struct {
	start, end int
	message    *types.Message
	offloadID  string
	usage      SummaryUsage
}

// replace builds the result of applying reps, which must not overlap.
func (in *StrategyInput) replace(ctx context.Context, kind Strategy, reps []replacement) *StrategyResult {
	if len(reps) == 0 {
		return in.notApplied()
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].start < reps[j].start })

	result := &StrategyResult{Applied: true}
	out := make([]*types.Message, 0, len(in.Working))
	cursor := 0

	for i, r := range reps {
		out = append(out, in.Working[cursor:r.start]...)
		out = append(out, r.message)
		span := in.Working[r.start:r.end]

		event := &types.CompressionEvent{
			ID:                uuid.NewString(),
			Kind:              string(kind),
			Timestamp:         in.now(),
			CompressedCount:   len(span),
			ProducedMessageID: r.message.ID,
			OffloadID:         r.offloadID,
			Metadata: types.EventMetadata{
				InputTokens:  r.usage.InputTokens,
				OutputTokens: r.usage.OutputTokens,
				DurationMS:   r.usage.Duration.Milliseconds(),
				TokensBefore: in.countTokens(ctx, span),
				TokensAfter:  in.countTokens(ctx, []*types.Message{r.message}),
			},
		}
		// Neighbours replaced in the same pass are named by their produced message.
		switch {
		case i > 0 && reps[i-1].end == r.start:
			event.PreviousMessageID = reps[i-1].message.ID
		case r.start > 0:
			event.PreviousMessageID = in.Working[r.start-1].ID
		}
		switch {
		case i+1 < len(reps) && reps[i+1].start == r.end:
			event.NextMessageID = reps[i+1].message.ID
		case r.end < len(in.Working):
			event.NextMessageID = in.Working[r.end].ID
		}
		result.Events = append(result.Events, event)

		if r.offloadID != "" {
			result.Offloads = append(result.Offloads, OffloadEntry{ID: r.offloadID, Messages: span})
		}
		cursor = r.end
	}
	out = append(out, in.Working[cursor:]...)
	result.Messages = out

	return result
}

// newCompactedMessage creates the message that stands in for replaced.
func (in *StrategyInput) newCompactedMessage(kind Strategy, role types.Role, content []types.ContentBlock, replaced []*types.Message, offloadID string) *types.Message {
	ids := make([]string, len(replaced))
	for i, msg := range replaced {
		ids[i] = msg.ID
	}

	meta := map[string]any{
		types.MetaCompactionKind: string(kind),
		types.MetaReplaces:       ids,
	}
	if offloadID != "" {
		meta[types.MetaOffloadID] = offloadID
	}

	return &types.Message{
		ID:        types.NewMessageID(),
		SessionID: in.SessionID,
		Role:      role,
		Content:   content,
		Metadata:  meta,
		CreatedAt: in.now(),
	}
}

// newSummaryMessage wraps summary text in an assistant message that replaces span.
func (in *StrategyInput) newSummaryMessage(kind Strategy, header, text string, span []*types.Message, offloadID string) *types.Message {
	body := header + "\n" + strings.TrimSpace(text) + "\n" + in.reloadHint(offloadID)
	msg := in.newCompactedMessage(kind, types.RoleAssistant,
		[]types.ContentBlock{{Type: types.ContentTypeText, Text: body}}, span, offloadID)
	msg.IsSummary = true
	return msg
}

// reloadHint tells the agent how to get the originals back.
func (in *StrategyInput) reloadHint(offloadID string) string {
	return fmt.Sprintf("[Original content offloaded. Call %s with working_context_offload_uuid %q to reload it.]",
		in.Config.ReloadToolName, offloadID)
}

// payloadText flattens the payload of a message, tool inputs included.
func payloadText(msg *types.Message) string {
	var parts []string
	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText, types.ContentTypeThinking:
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case types.ContentTypeToolUse:
			if len(block.ToolInput) > 0 {
				parts = append(parts, block.ToolName+" "+string(block.ToolInput))
			}
		case types.ContentTypeToolResult:
			if block.ToolContent != "" {
				parts = append(parts, block.ToolContent)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// withPayload returns the content of msg with its payload swapped for text.
// Tool call and tool result blocks are kept so pairing survives; the text
// goes into the first tool result, or into a leading text block when the
// message has none. Tool inputs longer than maxInputChars become {}.
func withPayload(msg *types.Message, text string, maxInputChars int) []types.ContentBlock {
	blocks := make([]types.ContentBlock, 0, len(msg.Content)+1)
	placed := false

	for _, block := range msg.Content {
		switch block.Type {
		case types.ContentTypeText, types.ContentTypeThinking:
			// replaced by text
		case types.ContentTypeToolUse:
			b := block
			if utf8.RuneCount(block.ToolInput) > maxInputChars {
				b.ToolInput = json.RawMessage(`{}`)
			} else if block.ToolInput != nil {
				b.ToolInput = append(json.RawMessage(nil), block.ToolInput...)
			}
			blocks = append(blocks, b)
		case types.ContentTypeToolResult:
			b := block
			if placed {
				b.ToolContent = "[offloaded]"
			} else {
				b.ToolContent = text
				placed = true
			}
			blocks = append(blocks, b)
		case types.ContentTypeImage, types.ContentTypeDocument:
			// binary payloads are not carried over
		}
	}

	if !placed {
		blocks = append([]types.ContentBlock{{Type: types.ContentTypeText, Text: text}}, blocks...)
	}
	return blocks
}
