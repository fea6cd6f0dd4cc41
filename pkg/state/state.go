package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
)

// State is the container exchanged between steps: a mapping of named fields.
// A step receives a read view and returns a partial update holding only the
// fields it computed; the executor alone merges partials back, through each
// field's declared reducer.
type State map[string]any

// Clone returns a copy safe to hand to a concurrently running step.
// Top-level maps and slices are copied; nested values are shared, which is
// acceptable because steps never mutate received values in place.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		switch tv := v.(type) {
		case map[string]any:
			m := make(map[string]any, len(tv))
			for mk, mv := range tv {
				m[mk] = mv
			}
			out[k] = m
		case []any:
			sl := make([]any, len(tv))
			copy(sl, tv)
			out[k] = sl
		case []domain.Message:
			sl := make([]domain.Message, len(tv))
			copy(sl, tv)
			out[k] = sl
		case []domain.ToolInvocation:
			sl := make([]domain.ToolInvocation, len(tv))
			copy(sl, tv)
			out[k] = sl
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the field as a string, or "" if absent or another type.
func (s State) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Int returns the field as an int, tolerating the float64 and json.Number
// forms JSON decoding produces.
func (s State) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

// Bool returns the field as a bool, or false if absent.
func (s State) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// Messages returns the field as a message sequence. It rehydrates the
// []any-of-maps form produced by a snapshot round-trip.
func (s State) Messages(key string) []domain.Message {
	switch v := s[key].(type) {
	case []domain.Message:
		return v
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var msgs []domain.Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil
		}
		return msgs
	default:
		return nil
	}
}

// Snapshot serializes the state into an append-only checkpoint record.
// Seq is left for the store to assign.
func (s State) Snapshot(threadID string) (domain.Snapshot, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to marshal state: %w", err)
	}
	return domain.Snapshot{
		ThreadID:  threadID,
		State:     raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// FromSnapshot restores a state container from a checkpoint record.
func FromSnapshot(snap domain.Snapshot) (State, error) {
	var s State
	if err := json.Unmarshal(snap.State, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return s, nil
}
