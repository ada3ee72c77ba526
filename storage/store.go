package storage

import (
	"context"
	"errors"
	"time"

	"github.com/youssefsiam38/agentctx/types"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a session.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store persists engine snapshots. Implementations replace the whole
// snapshot on save, except events which are append-only.
type Store interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// Snapshot is the persisted state of one conversation: the working set,
// the original log, the offload archive and the event log.
type Snapshot struct {
	SessionID   string                      `json:"session_id"`
	WorkingSet  []*types.Message            `json:"working_set"`
	OriginalLog []*types.Message            `json:"original_log"`
	Offload     map[string][]*types.Message `json:"offload"`
	Events      []*types.CompressionEvent   `json:"events"`
	SavedAt     time.Time                   `json:"saved_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := &Snapshot{
		SessionID:   s.SessionID,
		WorkingSet:  types.CloneMessages(s.WorkingSet),
		OriginalLog: types.CloneMessages(s.OriginalLog),
		SavedAt:     s.SavedAt,
	}
	if s.Offload != nil {
		cp.Offload = make(map[string][]*types.Message, len(s.Offload))
		for id, msgs := range s.Offload {
			cp.Offload[id] = types.CloneMessages(msgs)
		}
	}
	if s.Events != nil {
		cp.Events = make([]*types.CompressionEvent, len(s.Events))
		for i, e := range s.Events {
			ev := *e
			cp.Events[i] = &ev
		}
	}
	return cp
}

// FindMessage returns the message with id from the working set or, failing
// that, the original log.
func (s *Snapshot) FindMessage(id string) *types.Message {
	for _, msg := range s.WorkingSet {
		if msg.ID == id {
			return msg
		}
	}
	for _, msg := range s.OriginalLog {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

func validateSnapshot(snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is nil")
	}
	if snap.SessionID == "" {
		return errors.New("snapshot session_id is required")
	}
	return nil
}

// mergeEvents appends the events of next that prev does not hold yet.
func mergeEvents(prev, next []*types.CompressionEvent) []*types.CompressionEvent {
	seen := make(map[string]bool, len(prev))
	out := make([]*types.CompressionEvent, 0, len(prev)+len(next))
	for _, e := range prev {
		seen[e.ID] = true
		out = append(out, e)
	}
	for _, e := range next {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out
}
