package ports

import "context"

// Tool is a callable adapter registered with the dispatcher. Name must be
// unique within a registry; Description and Schema are consumed by the
// model for tool selection.
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON Schema object describing the argument contract.
	Schema() map[string]any

	// Invoke executes the tool. Errors are converted by the dispatcher into
	// structured results fed back to the caller; they never crash a run.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}
