package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/observability"
	"github.com/epivigil/epivigil/pkg/ports"
)

// Dispatcher executes tool calls against a registry, capturing duration and
// outcome into audit records. An unknown tool name or a tool panic becomes a
// structured error result, never a crash: the driving model adapts by
// re-invoking if it chooses to. There is no automatic retry.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one tool call and returns its result plus the audit
// record for the tool log.
func (d *Dispatcher) Dispatch(ctx context.Context, call domain.ToolCall) (domain.ToolResult, domain.ToolInvocation) {
	started := time.Now()

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn("tool not found", "tool", call.Name)
		return d.finish(call, nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, call.Name), started)
	}

	payload, err := d.invoke(ctx, tool, call.Args)
	return d.finish(call, payload, err, started)
}

// invoke runs the tool with panic recovery so a misbehaving adapter cannot
// abort sibling steps already in flight.
func (d *Dispatcher) invoke(ctx context.Context, tool ports.Tool, args map[string]any) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return tool.Invoke(ctx, args)
}

func (d *Dispatcher) finish(call domain.ToolCall, payload any, err error, started time.Time) (domain.ToolResult, domain.ToolInvocation) {
	elapsed := time.Since(started)

	result := domain.ToolResult{ID: call.ID, Name: call.Name}
	invocation := domain.ToolInvocation{
		Name:      call.Name,
		Args:      call.Args,
		StartedAt: started.UTC(),
		Duration:  elapsed,
	}

	if err != nil {
		result.IsError = true
		result.Error = err.Error()
		invocation.IsError = true
		invocation.Error = err.Error()
		d.metrics.ObserveTool(call.Name, "error", elapsed)
		d.logger.Warn("tool dispatch failed", "tool", call.Name, "err", err, "duration", elapsed)
		return result, invocation
	}

	result.Result = payload
	invocation.Result = preview(payload, 200)
	d.metrics.ObserveTool(call.Name, "ok", elapsed)
	d.logger.Debug("tool dispatched", "tool", call.Name, "duration", elapsed)
	return result, invocation
}

// preview renders a payload for the audit log, truncated to n runes.
func preview(payload any, n int) string {
	var text string
	switch v := payload.(type) {
	case string:
		text = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			text = fmt.Sprintf("%v", v)
		} else {
			text = string(raw)
		}
	}
	runes := []rune(text)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return text
}
