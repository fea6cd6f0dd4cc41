package state

import (
	"reflect"

	"github.com/epivigil/epivigil/pkg/domain"
)

// Reducer reconciles an existing field value with an incoming partial value.
// Reducers must be pure; the merge machinery relies on two merges of
// disjoint partials into the same base commuting.
type Reducer func(existing, incoming any) any

// KeepFirst keeps the existing value once set. Used for read-only/config
// fields initialized at the start of a run.
func KeepFirst(existing, incoming any) any {
	if existing != nil {
		return existing
	}
	return incoming
}

// KeepLatest prefers the incoming value when non-nil. Latest-wins fields
// must be written by at most one branch per wave; two concurrent writers is
// a topology authoring error the runtime does not detect.
func KeepLatest(existing, incoming any) any {
	if incoming != nil {
		return incoming
	}
	return existing
}

// Append concatenates two sequences, treating nil as empty. Both sides must
// be slices of a common element type; mismatched kinds fall back to the
// incoming value.
func Append(existing, incoming any) any {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return incoming
	}

	// Fast paths for the sequence types the workflows actually use.
	if ex, ok := existing.([]domain.Message); ok {
		if in, ok := incoming.([]domain.Message); ok {
			out := make([]domain.Message, 0, len(ex)+len(in))
			return append(append(out, ex...), in...)
		}
	}
	if ex, ok := existing.([]domain.ToolInvocation); ok {
		if in, ok := incoming.([]domain.ToolInvocation); ok {
			out := make([]domain.ToolInvocation, 0, len(ex)+len(in))
			return append(append(out, ex...), in...)
		}
	}
	if ex, ok := existing.([]any); ok {
		if in, ok := incoming.([]any); ok {
			out := make([]any, 0, len(ex)+len(in))
			return append(append(out, ex...), in...)
		}
	}

	ev := reflect.ValueOf(existing)
	iv := reflect.ValueOf(incoming)
	if ev.Kind() != reflect.Slice || iv.Kind() != reflect.Slice || ev.Type() != iv.Type() {
		return incoming
	}
	out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+iv.Len())
	out = reflect.AppendSlice(out, ev)
	out = reflect.AppendSlice(out, iv)
	return out.Interface()
}

// MergeMap unions two string-keyed maps; the incoming side wins on key
// conflicts. Non-map operands fall back to the incoming value.
func MergeMap(existing, incoming any) any {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return incoming
	}

	ex, okE := existing.(map[string]any)
	in, okI := incoming.(map[string]any)
	if !okE || !okI {
		return incoming
	}

	out := make(map[string]any, len(ex)+len(in))
	for k, v := range ex {
		out[k] = v
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}
