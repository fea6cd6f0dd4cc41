// Package redis implements ports.CheckpointStore on Redis. Each thread's
// history is an RPUSH-only list; a ZSET index tracks known threads.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/epivigil/epivigil/pkg/domain"
)

// DefaultPrefix namespaces all keys written by this package.
const DefaultPrefix = "epivigil:thread:"

// Store implements ports.CheckpointStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for thread histories.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithPrefix sets the key prefix for thread histories.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // no expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(threadID string) string {
	return s.prefix + threadID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Append pushes a snapshot onto the thread's history list. The sequence
// number is the resulting list length, so concurrent appenders never
// produce duplicate or gapped sequences.
func (s *Store) Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	// Seq is stamped after the push below; store the snapshot without it
	// and rely on list position as the source of truth.
	stored := snap
	stored.Seq = 0
	data, err := json.Marshal(stored)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	push := pipe.RPush(ctx, s.key(snap.ThreadID), data)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(snap.CreatedAt.Unix()),
		Member: snap.ThreadID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(snap.ThreadID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to append to redis: %w", err)
	}

	snap.Seq = int(push.Val())
	return snap, nil
}

// Latest returns the last snapshot in the thread's history list.
func (s *Store) Latest(ctx context.Context, threadID string) (domain.Snapshot, error) {
	vals, err := s.client.LRange(ctx, s.key(threadID), -1, -1).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to read from redis: %w", err)
	}
	if len(vals) == 0 {
		return domain.Snapshot{}, domain.ErrThreadNotFound
	}

	length, err := s.client.LLen(ctx, s.key(threadID)).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to read history length: %w", err)
	}

	snap, err := decodeSnapshot(vals[0], int(length))
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// History returns all snapshots for the thread in sequence order.
func (s *Store) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	vals, err := s.client.LRange(ctx, s.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}

	out := make([]domain.Snapshot, 0, len(vals))
	for i, val := range vals {
		snap, err := decodeSnapshot(val, i+1)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Threads lists thread IDs from the index.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	threads, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return threads, nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeSnapshot(raw string, seq int) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	snap.Seq = seq
	return snap, nil
}
