package compaction

import (
	"context"

	"github.com/google/uuid"
	"github.com/youssefsiam38/agentctx/types"
)

// OffloadStrategy replaces large payloads with a short preview and a reload
// hint, archiving the original message. Everything at or after the latest
// final response is left alone; KeepTail also leaves the lastKeep tail alone.
type OffloadStrategy struct {
	KeepTail bool
}

// Name implements StrategyExecutor.
func (s *OffloadStrategy) Name() Strategy {
	if s.KeepTail {
		return StrategyOffloadProtected
	}
	return StrategyOffloadUnprotected
}

// Execute implements StrategyExecutor.
func (s *OffloadStrategy) Execute(ctx context.Context, in *StrategyInput) (*StrategyResult, error) {
	previewChars := in.Config.OffloadPreviewChars

	var reps []replacement
	for i := 0; i < in.Window.HistoryEnd(s.KeepTail); i++ {
		msg := in.Working[i]
		if !eligible(msg) || msg.PayloadChars() < in.Config.LargePayloadChars {
			continue
		}

		offloadID := uuid.NewString()
		text := previewRunes(payloadText(msg), previewChars) + "...\n" + in.reloadHint(offloadID)
		content := withPayload(msg, text, previewChars)

		reps = append(reps, replacement{
			start:     i,
			end:       i + 1,
			message:   in.newCompactedMessage(s.Name(), msg.Role, content, []*types.Message{msg}, offloadID),
			offloadID: offloadID,
		})
	}

	return in.replace(ctx, s.Name(), reps), nil
}
