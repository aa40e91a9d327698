package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/creastat/chatstore/session"
)

// MemoryStore implements session.Store using an in-memory map with optimistic locking.
// Snapshots are cloned on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*session.Snapshot
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*session.Snapshot),
	}
}

// Load implements session.Store.
// Returns nil if nothing is stored under key.
func (s *MemoryStore) Load(ctx context.Context, key string) (*session.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.snapshots[key]
	if !exists {
		return nil, nil
	}
	return snap.Clone(), nil
}

// Save implements session.Store.
func (s *MemoryStore) Save(ctx context.Context, key string, snap *session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if existing, ok := s.snapshots[key]; ok {
		stored = existing.Version
	}
	if stored != snap.Version {
		return session.ErrVersionConflict
	}

	snap.Version++
	snap.SavedAt = time.Now()
	s.snapshots[key] = snap.Clone()
	return nil
}

// Delete implements session.Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, key)
	return nil
}

// Close implements session.Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]*session.Snapshot)
	return nil
}
