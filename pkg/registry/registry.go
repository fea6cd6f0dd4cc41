// Package registry maps tool names to callable adapters and dispatches
// tool calls for both the deterministic workflows and the autonomous loop.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/ports"
)

// Registry manages the available tools.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ports.Tool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]ports.Tool)}
}

// Register adds a tool. A tool with the same name is overwritten.
func (r *Registry) Register(t ports.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the tool descriptions bound into model requests, sorted by
// name for deterministic prompts.
func (r *Registry) Specs() []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]domain.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, domain.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Func adapts a plain function into a ports.Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	ToolSchema      map[string]any
	Fn              func(ctx context.Context, args map[string]any) (any, error)
}

func (f Func) Name() string           { return f.ToolName }
func (f Func) Description() string    { return f.ToolDescription }
func (f Func) Schema() map[string]any { return f.ToolSchema }

func (f Func) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.Fn(ctx, args)
}
