// Package epivigil is the embeddable entry point for the SRAG analytics
// workflow engine. It wraps the internal workflow service and re-exports the
// request and result shapes so consumers never import internal packages.
package epivigil

import (
	"context"
	"log/slog"

	"github.com/epivigil/epivigil/internal/workflows"
	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/guardrails"
	"github.com/epivigil/epivigil/pkg/observability"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/registry"
	"github.com/epivigil/epivigil/pkg/state"
)

// Version is reported by the CLI, the HTTP health surface and the MCP server.
var Version = "0.4.0"

// Topology names accepted by Engine.Run.
const (
	TopologyReport = workflows.TopologyReport
	TopologyChat   = workflows.TopologyChat
)

// Collaborators bundles the external dependencies every workflow needs.
type Collaborators = workflows.Collaborators

// Request and result shapes of the two high-level operations.
type (
	ReportRequest   = workflows.ReportRequest
	ReportResult    = workflows.ReportResult
	ChatRequest     = workflows.ChatRequest
	ChatResult      = workflows.ChatResult
	ToolCallSummary = workflows.ToolCallSummary
)

// Option configures the Engine.
type Option = workflows.Option

// WithStore enables checkpoint persistence and thread resumption.
func WithStore(store ports.CheckpointStore) Option { return workflows.WithStore(store) }

// WithLocker serializes same-thread runs across processes.
func WithLocker(locker ports.DistributedLocker) Option { return workflows.WithLocker(locker) }

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option { return workflows.WithLogger(logger) }

// WithObservability enables prometheus instrumentation.
func WithObservability(m *observability.Metrics) Option { return workflows.WithObservability(m) }

// WithGuard overrides the default guardrail configuration.
func WithGuard(guard *guardrails.Guard) Option { return workflows.WithGuard(guard) }

// WithStepCeiling overrides the per-run step budget.
func WithStepCeiling(n int) Option { return workflows.WithStepCeiling(n) }

// Engine is the high-level API: two operations plus a raw topology runner.
type Engine struct {
	service *workflows.Service
}

// New builds an Engine from the collaborator set.
func New(deps Collaborators, opts ...Option) (*Engine, error) {
	svc, err := workflows.New(deps, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{service: svc}, nil
}

// Report runs the deterministic report workflow.
func (e *Engine) Report(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	return e.service.Report(ctx, req)
}

// Chat runs one turn of the conversational loop.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	return e.service.Chat(ctx, req)
}

// History returns the persisted snapshots for a thread.
func (e *Engine) History(ctx context.Context, threadID string) ([]domain.Snapshot, error) {
	return e.service.History(ctx, threadID)
}

// Threads lists the known thread IDs.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	return e.service.Threads(ctx)
}

// Registry exposes the tool registry, for the MCP surface.
func (e *Engine) Registry() *registry.Registry {
	return e.service.Registry()
}

// Result is the outcome of a raw topology run.
type Result struct {
	Output    map[string]any `json:"output"`
	ThreadID  string         `json:"thread_id"`
	Err       string         `json:"error,omitempty"`
	Exhausted bool           `json:"exhausted,omitempty"`
}

// Run executes a named topology over a caller-provided initial state,
// bypassing the request shaping of Report and Chat.
func (e *Engine) Run(ctx context.Context, topology string, initial map[string]any, threadID string) (*Result, error) {
	out, threadID, err := e.service.RunTopology(ctx, topology, state.State(initial), threadID)
	if err != nil {
		return nil, err
	}
	return &Result{
		Output:    out,
		ThreadID:  threadID,
		Err:       out.String(workflows.KeyError),
		Exhausted: out.Bool(workflows.KeyExhausted),
	}, nil
}
