package compaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/youssefsiam38/agentctx/types"
)

// CurrentRoundLargeStrategy summarizes oversized messages of the current
// round in place. Tool call and result blocks are kept so pairing survives;
// the original message is off-loaded.
type CurrentRoundLargeStrategy struct{}

// Name implements StrategyExecutor.
func (s *CurrentRoundLargeStrategy) Name() Strategy {
	return StrategyCurrentRoundLarge
}

// Execute implements StrategyExecutor.
func (s *CurrentRoundLargeStrategy) Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error) {
	if in.Summarizer == nil {
		return in.notApplied(), nil
	}

	var reps []replacement
	for i := in.Window.CurrentRoundStart; i < len(in.Working); i++ {
		msg := in.Working[i]
		chars := msg.PayloadChars()
		if !eligible(msg) || chars < in.Config.LargePayloadChars {
			continue
		}

		target := int(float64(chars) * in.Config.CurrentRoundCompressionRatio)
		if target >= in.Config.LargePayloadChars {
			target = in.Config.LargePayloadChars - 1
		}

		span := []*types.Message{msg}
		summary, err := in.summarize(ctx,
			systemPrompt(in.Config.Prompts.LargeMessage, LargeMessageSystemPrompt),
			span,
			largeMessageInstruction(target),
		)
		if err != nil {
			return nil, err
		}

		offloadID := uuid.NewString()
		text := summary.Text + "\n" + in.reloadHint(offloadID)
		content := withPayload(msg, text, in.Config.OffloadPreviewChars)

		reps = append(reps, replacement{
			start:     i,
			end:       i + 1,
			message:   in.newCompactedMessage(StrategyCurrentRoundLarge, msg.Role, content, span, offloadID),
			offloadID: offloadID,
			usage:     summary.Usage,
		})
	}

	return in.replace(ctx, StrategyCurrentRoundLarge, reps), nil
}

// CurrentRoundStrategy merges the tool calls of the current round into one
// summary sized to CurrentRoundCompressionRatio of the characters it replaces.
// A trailing tool call still waiting for its result stays in place.
type CurrentRoundStrategy struct{}

// Name implements StrategyExecutor.
func (s *CurrentRoundStrategy) Name() Strategy {
	return StrategyCurrentRound
}

// Execute implements StrategyExecutor.
func (s *CurrentRoundStrategy) Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error) {
	if in.Summarizer == nil {
		return in.notApplied(), nil
	}

	start, end := currentToolSpan(in.Working, in.Window.CurrentRoundStart)
	start, end = pairSafeSpan(in.Working, start, end)
	if end-start < 2 {
		return in.notApplied(), nil
	}
	span := in.Working[start:end]

	chars := 0
	for _, msg := range span {
		chars += msg.PayloadChars()
	}
	target := int(float64(chars) * in.Config.CurrentRoundCompressionRatio)
	if target < 1 {
		target = 1
	}

	summary, err := in.summarize(ctx,
		systemPrompt(in.Config.Prompts.CurrentRound, CurrentRoundSystemPrompt),
		span,
		currentRoundInstruction(target, in.isPlanRelated(span)),
	)
	if err != nil {
		return nil, err
	}

	offloadID := uuid.NewString()
	header := fmt.Sprintf("[Summary of %d tool messages from the current task]", len(span))
	return in.replace(ctx, StrategyCurrentRound, []replacement{{
		start:     start,
		end:       end,
		message:   in.newSummaryMessage(StrategyCurrentRound, header, summary.Text, span, offloadID),
		offloadID: offloadID,
		usage:     summary.Usage,
	}}), nil
}

// currentToolSpan returns the span from the first to the last tool message at
// or after from. Preserved messages cut the span: only what follows the last
// one is returned.
func currentToolSpan(messages []*types.Message, from int) (int, int) {
	start, end := -1, -1
	for i := from; i < len(messages); i++ {
		msg := messages[i]
		if msg.IsPreserved {
			start, end = -1, -1
			continue
		}
		if !msg.IsToolMessage() {
			continue
		}
		if start < 0 {
			start = i
		}
		end = i + 1
	}
	if start < 0 {
		return 0, 0
	}
	return start, end
}
