package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a previously acquired distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates thread ownership across processes so two
// replicas never run the same thread concurrently.
type DistributedLocker interface {
	// Lock blocks until the lock for key is acquired or ctx is done.
	// The returned UnlockFunc MUST be called to release the lock; the TTL
	// bounds how long a crashed holder can keep it.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
