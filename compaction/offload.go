package compaction

import (
	"sort"

	"github.com/youssefsiam38/agentctx/types"
)

// OffloadStore archives the original messages behind a compaction, keyed by UUID.
// Entries live until Clear is called. Not safe for concurrent use.
type OffloadStore struct {
	entries map[string][]*types.Message
}

// NewOffloadStore creates an empty store.
func NewOffloadStore() *OffloadStore {
	return &OffloadStore{entries: make(map[string][]*types.Message)}
}

// Offload archives messages under id, replacing any previous entry.
func (s *OffloadStore) Offload(id string, messages []*types.Message) {
	s.entries[id] = types.CloneMessages(messages)
}

// Reload returns a copy of the messages archived under id.
func (s *OffloadStore) Reload(id string) ([]*types.Message, error) {
	msgs, ok := s.entries[id]
	if !ok {
		return nil, &OffloadNotFoundError{ID: id}
	}
	return types.CloneMessages(msgs), nil
}

// Clear drops the entry. Clearing an unknown id is a no-op.
func (s *OffloadStore) Clear(id string) {
	delete(s.entries, id)
}

// Len returns the number of entries.
func (s *OffloadStore) Len() int {
	return len(s.entries)
}

// IDs returns the entry ids in sorted order.
func (s *OffloadStore) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of all entries.
func (s *OffloadStore) Snapshot() map[string][]*types.Message {
	out := make(map[string][]*types.Message, len(s.entries))
	for id, msgs := range s.entries {
		out[id] = types.CloneMessages(msgs)
	}
	return out
}

// EventLog is the append-only record of compression events.
type EventLog struct {
	events []*types.CompressionEvent
}

// Append records events in order.
func (l *EventLog) Append(events ...*types.CompressionEvent) {
	l.events = append(l.events, events...)
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	return len(l.events)
}

// Events returns a copy of the recorded events.
func (l *EventLog) Events() []*types.CompressionEvent {
	out := make([]*types.CompressionEvent, len(l.events))
	for i, e := range l.events {
		cp := *e
		out[i] = &cp
	}
	return out
}
