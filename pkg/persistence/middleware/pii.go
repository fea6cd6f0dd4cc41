package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
)

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of state fields
// whose names match the given patterns before snapshots are persisted.
// Reads pass through untouched: masking is one-way by design.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Append(ctx context.Context, snap domain.Snapshot) (domain.Snapshot, error) {
	var fields map[string]any
	if err := json.Unmarshal(snap.State, &fields); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to decode state for masking: %w", err)
	}

	maskMap(fields, m.patterns)

	masked, err := json.Marshal(fields)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to re-encode masked state: %w", err)
	}

	out := snap
	out.State = masked
	return m.next.Append(ctx, out)
}

func (m *piiMiddleware) Latest(ctx context.Context, threadID string) (domain.Snapshot, error) {
	return m.next.Latest(ctx, threadID)
}

func (m *piiMiddleware) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	return m.next.History(ctx, threadID)
}

func (m *piiMiddleware) Threads(ctx context.Context) ([]string, error) {
	return m.next.Threads(ctx)
}

func maskMap(fields map[string]any, patterns []*regexp.Regexp) {
	for k, v := range fields {
		for _, p := range patterns {
			if p.MatchString(k) {
				fields[k] = "***"
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
