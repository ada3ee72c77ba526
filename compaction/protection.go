package compaction

import "github.com/youssefsiam38/agentctx/types"

// ProtectionWindow marks the parts of a working set strategies must not touch.
// It is recomputed before every strategy since each one may reshape the set.
type ProtectionWindow struct {
	// Len is the size of the working set the window was computed for.
	Len int

	// KeepFrom is the first index of the lastKeep tail.
	KeepFrom int

	// FinalResponseIdx is the latest assistant message without tool calls, or -1.
	FinalResponseIdx int

	// LatestUserIdx is the latest genuine user turn, or -1.
	LatestUserIdx int

	// CurrentRoundStart is the first message after the latest user turn,
	// or 0 when there is none.
	CurrentRoundStart int
}

// ComputeWindow derives the protection window of messages. A negative
// lastKeep protects no tail.
func ComputeWindow(messages []*types.Message, lastKeep int) ProtectionWindow {
	if lastKeep < 0 {
		lastKeep = 0
	}
	w := ProtectionWindow{
		Len:              len(messages),
		KeepFrom:         len(messages) - lastKeep,
		FinalResponseIdx: -1,
		LatestUserIdx:    -1,
	}
	if w.KeepFrom < 0 {
		w.KeepFrom = 0
	}

	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if w.FinalResponseIdx < 0 && msg.IsFinalResponse() {
			w.FinalResponseIdx = i
		}
		if w.LatestUserIdx < 0 && msg.IsUserTurn() {
			w.LatestUserIdx = i
		}
		if w.FinalResponseIdx >= 0 && w.LatestUserIdx >= 0 {
			break
		}
	}
	w.CurrentRoundStart = w.LatestUserIdx + 1

	return w
}

// HistoryEnd returns the exclusive end of the prefix that may be compressed.
// Everything at or after the latest final response is protected; keepTail
// additionally protects the lastKeep tail.
func (w ProtectionWindow) HistoryEnd(keepTail bool) int {
	end := w.Len
	if keepTail {
		end = w.KeepFrom
	}
	if w.FinalResponseIdx >= 0 && w.FinalResponseIdx < end {
		end = w.FinalResponseIdx
	}
	return end
}

// Protected reports whether index i is inside the protected region.
func (w ProtectionWindow) Protected(i int, keepTail bool) bool {
	return i >= w.HistoryEnd(keepTail)
}

// eligible reports whether a message may be replaced by a strategy.
func eligible(msg *types.Message) bool {
	return !msg.IsPreserved && !msg.IsCompacted()
}

// round is a user turn followed by everything up to the next user turn.
type round struct {
	start, end int // [start, end)
	complete   bool
}

// splitRounds splits messages[:end] into rounds. Messages before the first
// user turn belong to no round.
func splitRounds(messages []*types.Message, end int) []round {
	var rounds []round
	start := -1
	for i := 0; i < end; i++ {
		if !messages[i].IsUserTurn() {
			continue
		}
		if start >= 0 {
			rounds = append(rounds, newRound(messages, start, i))
		}
		start = i
	}
	if start >= 0 {
		rounds = append(rounds, newRound(messages, start, end))
	}
	return rounds
}

func newRound(messages []*types.Message, start, end int) round {
	return round{
		start:    start,
		end:      end,
		complete: end-start >= 2 && messages[end-1].IsFinalResponse(),
	}
}

// pairSafeSpan shrinks [start, end) until no tool call inside it has its
// result outside, and no result inside it answers a call outside.
// Calls still awaiting a result are excluded too.
func pairSafeSpan(messages []*types.Message, start, end int) (int, int) {
	for start < end {
		calls := make(map[string]int)
		results := make(map[string]int)
		for i := start; i < end; i++ {
			for _, block := range messages[i].Content {
				switch block.Type {
				case types.ContentTypeToolUse:
					calls[block.ToolUseID] = i
				case types.ContentTypeToolResult:
					results[block.ToolResultID] = i
				}
			}
		}

		newStart, newEnd := start, end
		for id, idx := range results {
			if _, ok := calls[id]; !ok && idx+1 > newStart {
				newStart = idx + 1
			}
		}
		for id, idx := range calls {
			if _, ok := results[id]; !ok && idx < newEnd {
				newEnd = idx
			}
		}

		if newStart == start && newEnd == end {
			break
		}
		start, end = newStart, newEnd
	}

	if start > end {
		return start, start
	}
	return start, end
}

func containsPreserved(messages []*types.Message) bool {
	for _, msg := range messages {
		if msg.IsPreserved {
			return true
		}
	}
	return false
}
