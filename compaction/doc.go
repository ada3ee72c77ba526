// Package compaction keeps an agent's conversation within its context window.
//
// An Engine holds four stores for one session: the working set sent to the
// model, the append-only original log, the offload store of replaced spans,
// and the compression event log. Every message replaced by a summary or a
// placeholder stays recoverable through Reload.
//
// # Trigger
//
// CompressIfNeeded runs when the working set holds at least MsgThreshold
// messages or its estimated size reaches MaxTokens * TokenRatio. Tokens are
// counted by the configured TokenCounter, falling back to a character-based
// approximation when counting fails.
//
// # Strategies
//
// Strategies run in order, from least to most lossy, and the chain stops as
// soon as the working set is back under budget:
//
//   - StrategyToolRuns summarizes long runs of consecutive tool messages
//     outside the LastKeep tail.
//   - StrategyOffloadProtected replaces large payloads outside the tail with a
//     preview and a reload hint.
//   - StrategyOffloadUnprotected does the same while ignoring the tail.
//   - StrategyHistoricalRounds summarizes finished conversation rounds.
//   - StrategyCurrentRoundLarge summarizes oversized messages of the round in
//     progress in place.
//   - StrategyCurrentRound merges the round's tool calls into one summary.
//
// The latest final response and the messages after it are never rewritten by
// the history strategies. A tool call and its result are always replaced
// together. A strategy whose output grows the token count is discarded, and a
// failing or panicking strategy is logged and skipped.
//
// # Usage
//
//	engine, err := compaction.New(&compaction.Config{
//	    MaxTokens: 200000,
//	    LastKeep:  30,
//	},
//	    compaction.WithSummarizer(compaction.NewOpenAISummarizer(client, "gpt-4o-mini", 0)),
//	    compaction.WithTokenCounter(compaction.NewTiktokenCounter("")),
//	    compaction.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    return err
//	}
//
//	engine.AddMessage(msg)
//	working, compressed := engine.CompressIfNeeded(ctx)
//
// Off-loaded spans are restored with Reload using the id printed in the
// summary, usually through the context_reload tool in package tool/builtin.
package compaction
