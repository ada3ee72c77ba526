package compaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/youssefsiam38/agentctx/types"
)

// ToolRunsStrategy replaces each long run of consecutive tool messages that
// lies before the lastKeep tail and before the latest final response with a
// single summary. Runs are trimmed so a tool call and its result always end
// up on the same side of the cut.
type ToolRunsStrategy struct{}

// Name implements StrategyExecutor.
func (s *ToolRunsStrategy) Name() Strategy {
	return StrategyToolRuns
}

// Execute implements StrategyExecutor.
func (s *ToolRunsStrategy) Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error) {
	if in.Summarizer == nil {
		return in.notApplied(), nil
	}

	var reps []replacement
	for _, run := range toolRuns(in.Working, in.Window.HistoryEnd(true)) {
		start, end := pairSafeSpan(in.Working, run.start, run.end)
		if end-start < in.Config.MinConsecutiveToolMessages {
			continue
		}
		span := in.Working[start:end]

		summary, err := in.summarize(ctx,
			systemPrompt(in.Config.Prompts.ToolRuns, ToolRunsSystemPrompt),
			span,
			toolRunsInstruction(in.isPlanRelated(span)),
		)
		if err != nil {
			return nil, err
		}

		offloadID := uuid.NewString()
		header := fmt.Sprintf("[Summary of %d tool messages]", len(span))
		reps = append(reps, replacement{
			start:     start,
			end:       end,
			message:   in.newSummaryMessage(StrategyToolRuns, header, summary.Text, span, offloadID),
			offloadID: offloadID,
			usage:     summary.Usage,
		})
	}

	return in.replace(ctx, StrategyToolRuns, reps), nil
}

// toolRuns returns the maximal runs of eligible tool messages in messages[:end].
func toolRuns(messages []*types.Message, end int) []round {
	var runs []round
	start := -1
	for i := 0; i < end; i++ {
		msg := messages[i]
		if msg.IsToolMessage() && eligible(msg) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, round{start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, round{start: start, end: end})
	}
	return runs
}
