package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/pkg/adapters/memory"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/session"
	"github.com/epivigil/epivigil/pkg/state"
)

// slowStore adds latency to provoke races if locking is missing.
type slowStore struct {
	inner *memory.Store
}

func (s *slowStore) Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	time.Sleep(10 * time.Millisecond) // Simulate IO
	return s.inner.Append(ctx, snap)
}

func (s *slowStore) Latest(ctx context.Context, threadID string) (domain.Snapshot, error) {
	time.Sleep(10 * time.Millisecond)
	return s.inner.Latest(ctx, threadID)
}

func (s *slowStore) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	return s.inner.History(ctx, threadID)
}

func (s *slowStore) Threads(ctx context.Context) ([]string, error) {
	return s.inner.Threads(ctx)
}

func TestManager_ColdStart(t *testing.T) {
	manager := session.NewManager(memory.NewStore())

	st, found, err := manager.Resume(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, st)
}

func TestManager_CheckpointResume(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	snap, err := manager.Checkpoint(ctx, "t1", state.State{"days": 30, "region": "SP"})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Seq)

	st, found, err := manager.Resume(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 30, st.Int("days"))
	assert.Equal(t, "SP", st.String("region"))
}

func TestManager_SerializesConcurrentCheckpoints(t *testing.T) {
	store := &slowStore{inner: memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "race-test"

	var wg sync.WaitGroup
	concurrentWrites := 10

	for i := 0; i < concurrentWrites; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			_, err := manager.Checkpoint(ctx, id, state.State{"val": val})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := manager.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, concurrentWrites)
	for i, snap := range history {
		assert.Equal(t, i+1, snap.Seq)
	}
}
