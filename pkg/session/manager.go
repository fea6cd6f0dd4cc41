package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/epivigil/epivigil/internal/logging"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/state"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access to a thread's checkpoint history.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.CheckpointStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional cross-process locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL bounds how long a crashed holder keeps a distributed lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager over the given checkpoint store.
func NewManager(store ports.CheckpointStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(threadID) after unlocking.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// Resume loads the latest state for the thread. A thread with no history is
// a cold start, not an error: Resume returns a nil state and found=false.
func (m *Manager) Resume(ctx context.Context, threadID string) (state.State, bool, error) {
	var (
		st    state.State
		found bool
	)
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		snap, err := m.store.Latest(ctx, threadID)
		if errors.Is(err, domain.ErrThreadNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load thread %q: %w", threadID, err)
		}
		st, err = state.FromSnapshot(snap)
		if err != nil {
			return fmt.Errorf("failed to decode thread %q: %w", threadID, err)
		}
		found = true
		return nil
	})
	return st, found, err
}

// Checkpoint appends the state as a new snapshot for the thread.
func (m *Manager) Checkpoint(ctx context.Context, threadID string, st state.State) (domain.Snapshot, error) {
	var stored domain.Snapshot
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		snap, err := st.Snapshot(threadID)
		if err != nil {
			return err
		}
		stored, err = m.store.Append(ctx, snap)
		return err
	})
	return stored, err
}

// History delegates to the store.
func (m *Manager) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	return m.store.History(ctx, threadID)
}

// Threads delegates to the store.
func (m *Manager) Threads(ctx context.Context) ([]string, error) {
	return m.store.Threads(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.CheckpointStore {
	return m.store
}

// WithLock executes a function while holding the lock for the thread.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(threadID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
