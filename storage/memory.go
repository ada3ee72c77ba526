package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Useful for tests and
// short-lived agents.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*Snapshot)}
}

// SaveSnapshot implements Store.
func (s *MemoryStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := snap.Clone()
	// Events are append-only: keep the ones already stored that the new
	// snapshot does not carry.
	if prev, ok := s.snapshots[snap.SessionID]; ok {
		cp.Events = mergeEvents(prev.Events, cp.Events)
	}
	s.snapshots[snap.SessionID] = cp
	return nil
}

// LoadSnapshot implements Store.
func (s *MemoryStore) LoadSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, sessionID)
	}
	return snap.Clone(), nil
}

// DeleteSnapshot implements Store.
func (s *MemoryStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, sessionID)
	return nil
}
