package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/epivigil/epivigil/pkg/adapters/memory"
	"github.com/epivigil/epivigil/pkg/state"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		tid := fmt.Sprintf("thread-%d", i)
		_, _ = mgr.Checkpoint(ctx, tid, state.State{"i": i})
		_, _, _ = mgr.Resume(ctx, tid)
	}

	// Every acquire must be paired with a release, or the map grows forever.
	if leaked := len(mgr.locks); leaked != 0 {
		t.Errorf("memory leak detected: %d locks remaining after all operations", leaked)
	}
}
