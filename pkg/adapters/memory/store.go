// Package memory implements ports.CheckpointStore in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/epivigil/epivigil/pkg/domain"
)

// Store keeps per-thread snapshot history in memory.
// Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]domain.Snapshot
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string][]domain.Snapshot)}
}

// Append records a new snapshot, assigning the next sequence number.
func (s *Store) Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy the raw state so the caller can't mutate stored history.
	stored := snap
	stored.State = append([]byte(nil), snap.State...)
	stored.Seq = len(s.data[snap.ThreadID]) + 1

	s.data[snap.ThreadID] = append(s.data[snap.ThreadID], stored)
	return stored, nil
}

// Latest returns the most recent snapshot for the thread.
func (s *Store) Latest(ctx context.Context, threadID string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[threadID]
	if !ok || len(history) == 0 {
		return domain.Snapshot{}, domain.ErrThreadNotFound
	}
	return history[len(history)-1], nil
}

// History returns all snapshots for the thread in sequence order.
func (s *Store) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[threadID]
	out := make([]domain.Snapshot, len(history))
	copy(out, history)
	return out, nil
}

// Threads lists thread IDs with at least one snapshot, sorted for
// deterministic output.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
