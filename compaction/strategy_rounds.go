package compaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// HistoricalRoundsStrategy summarizes every complete round (a user turn
// through the assistant's final answer) that precedes the round holding the
// latest final response. Each round becomes one summary message.
type HistoricalRoundsStrategy struct{}

// Name implements StrategyExecutor.
func (s *HistoricalRoundsStrategy) Name() Strategy {
	return StrategyHistoricalRounds
}

// Execute implements StrategyExecutor.
func (s *HistoricalRoundsStrategy) Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error) {
	if in.Summarizer == nil || in.Window.FinalResponseIdx < 0 {
		return in.notApplied(), nil
	}

	// The round holding the latest final response starts at the last user
	// turn before it.
	limit := -1
	for i := in.Window.FinalResponseIdx; i >= 0; i-- {
		if in.Working[i].IsUserTurn() {
			limit = i
			break
		}
	}
	if limit <= 0 {
		return in.notApplied(), nil
	}

	var reps []replacement
	for _, r := range splitRounds(in.Working, limit) {
		if !r.complete {
			continue
		}
		span := in.Working[r.start:r.end]
		if containsPreserved(span) {
			continue
		}

		summary, err := in.summarize(ctx,
			systemPrompt(in.Config.Prompts.HistoricalRounds, HistoricalRoundsSystemPrompt),
			span,
			historicalRoundInstruction(),
		)
		if err != nil {
			return nil, err
		}

		offloadID := uuid.NewString()
		header := fmt.Sprintf("[Summary of an earlier conversation round, %d messages]", len(span))
		reps = append(reps, replacement{
			start:     r.start,
			end:       r.end,
			message:   in.newSummaryMessage(StrategyHistoricalRounds, header, summary.Text, span, offloadID),
			offloadID: offloadID,
			usage:     summary.Usage,
		})
	}

	return in.replace(ctx, StrategyHistoricalRounds, reps), nil
}
