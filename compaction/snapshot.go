package compaction

import (
	"errors"

	"github.com/youssefsiam38/agentctx/storage"
	"github.com/youssefsiam38/agentctx/types"
)

// Snapshot captures the engine's four stores. The result shares no memory
// with the engine.
func (e *Engine) Snapshot() *storage.Snapshot {
	return &storage.Snapshot{
		SessionID:   e.sessionID,
		WorkingSet:  types.CloneMessages(e.working),
		OriginalLog: types.CloneMessages(e.original),
		Offload:     e.offload.Snapshot(),
		Events:      e.events.Events(),
		SavedAt:     e.now(),
	}
}

// Restore rebuilds an engine from a snapshot. The snapshot's session id
// takes precedence over WithSessionID.
func Restore(snap *storage.Snapshot, config *Config, opts ...Option) (*Engine, error) {
	if snap == nil {
		return nil, NewCompactionError("Restore", errors.New("nil snapshot"))
	}

	e, err := New(config, append(opts, WithSessionID(snap.SessionID))...)
	if err != nil {
		return nil, err
	}

	e.working = types.CloneMessages(snap.WorkingSet)
	e.original = types.CloneMessages(snap.OriginalLog)
	for id, msgs := range snap.Offload {
		e.offload.Offload(id, msgs)
	}
	for _, ev := range snap.Events {
		cp := *ev
		e.events.Append(&cp)
	}

	return e, nil
}
