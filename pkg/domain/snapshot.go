package domain

import (
	"encoding/json"
	"time"
)

// Snapshot is one durable checkpoint of a thread's state container.
// Snapshots are append-only: a store assigns a monotonically increasing Seq
// per thread and never mutates an existing entry.
type Snapshot struct {
	ThreadID  string          `json:"thread_id"`
	Seq       int             `json:"seq"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}
