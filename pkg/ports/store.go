package ports

import (
	"context"

	"github.com/epivigil/epivigil/pkg/domain"
)

// CheckpointStore persists state snapshots per thread, append-only.
// It is the only resource shared across invocations of the same thread ID:
// concurrent invocations may race on "latest" visibility but never corrupt
// history, because entries are never mutated in place.
type CheckpointStore interface {
	// Append durably records a new snapshot for the thread, assigning the
	// next sequence number. The returned snapshot carries the assigned Seq.
	Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error)

	// Latest returns the most recent snapshot for the thread.
	// Returns domain.ErrThreadNotFound for a thread with no history.
	Latest(ctx context.Context, threadID string) (domain.Snapshot, error)

	// History returns all snapshots for the thread in sequence order.
	History(ctx context.Context, threadID string) ([]domain.Snapshot, error)

	// Threads lists thread IDs with at least one snapshot.
	Threads(ctx context.Context) ([]string, error)
}
