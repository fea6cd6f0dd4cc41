package ports

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/pkg/domain"
)

// RunCheckpointStoreContract verifies that a CheckpointStore implementation
// honors the append-only semantics the executor and session manager rely on.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	threadID := "contract-thread-" + time.Now().Format("20060102150405.000")

	mustJSON := func(v any) json.RawMessage {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return raw
	}

	t.Run("Append and Latest", func(t *testing.T) {
		first, err := store.Append(ctx, domain.Snapshot{
			ThreadID:  threadID,
			State:     mustJSON(map[string]any{"days": 30, "step": "one"}),
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, first.Seq)

		second, err := store.Append(ctx, domain.Snapshot{
			ThreadID:  threadID,
			State:     mustJSON(map[string]any{"days": 30, "step": "two"}),
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, second.Seq)

		latest, err := store.Latest(ctx, threadID)
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Seq)
		assert.JSONEq(t, string(second.State), string(latest.State))
	})

	t.Run("History is ordered and complete", func(t *testing.T) {
		history, err := store.History(ctx, threadID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		for i, snap := range history {
			assert.Equal(t, i+1, snap.Seq)
			assert.Equal(t, threadID, snap.ThreadID)
		}
	})

	t.Run("Latest on unknown thread is a cold start", func(t *testing.T) {
		_, err := store.Latest(ctx, "missing-"+threadID)
		assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	})

	t.Run("History on unknown thread is empty", func(t *testing.T) {
		history, err := store.History(ctx, "missing-"+threadID)
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("Threads lists appended ids", func(t *testing.T) {
		other := threadID + "-other"
		_, err := store.Append(ctx, domain.Snapshot{
			ThreadID:  other,
			State:     mustJSON(map[string]any{}),
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)

		threads, err := store.Threads(ctx)
		require.NoError(t, err)
		assert.Contains(t, threads, threadID)
		assert.Contains(t, threads, other)
	})
}
