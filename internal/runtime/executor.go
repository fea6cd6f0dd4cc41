// Package runtime contains the graph executor: a single generic interpreter
// that walks a topology, runs ready steps concurrently, and merges their
// partial updates into the shared state container through declared reducers.
// The same interpreter drives both the deterministic report workflow and the
// bounded autonomous chat loop.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/epivigil/epivigil/pkg/domain"
	"github.com/epivigil/epivigil/pkg/graph"
	"github.com/epivigil/epivigil/pkg/observability"
	"github.com/epivigil/epivigil/pkg/ports"
	"github.com/epivigil/epivigil/pkg/state"
)

// DefaultStepCeiling bounds total step executions per run. It is generous
// for the deterministic workflow and the effective iteration ceiling for
// the autonomous loop.
const DefaultStepCeiling = 24

// Executor runs topologies over a state schema.
type Executor struct {
	store       ports.CheckpointStore
	logger      *slog.Logger
	metrics     *observability.Metrics
	stepCeiling int
}

// Option configures the Executor.
type Option func(*Executor)

// WithCheckpointStore enables best-effort snapshot appends at every wave
// boundary. Append failures are logged, never fatal.
func WithCheckpointStore(store ports.CheckpointStore) Option {
	return func(e *Executor) { e.store = store }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithStepCeiling overrides the per-run step execution budget.
func WithStepCeiling(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.stepCeiling = n
		}
	}
}

// New creates an executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger:      slog.New(slog.DiscardHandler),
		stepCeiling: DefaultStepCeiling,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stepResult pairs a completed step with its partial update.
type stepResult struct {
	name    string
	partial state.State
	failed  bool
}

// Run executes the topology from its entry step until no step is ready,
// the step ceiling is exceeded, or the context is cancelled.
//
// Scheduling is wave-based: every ready step runs concurrently against a
// cloned view of the current state and returns a partial update. After the
// wave joins, partials merge into the shared container strictly through
// each field's reducer, in scheduling order; only then is the next ready
// set computed, so a fan-in step never observes a half-merged wave.
func (e *Executor) Run(ctx context.Context, topo *graph.Topology, schema *state.Schema, initial state.State, threadID string) (state.State, error) {
	current := schema.Init(initial)
	indegree := topo.Indegree()

	pending := make(map[string]int, len(indegree))
	for name, d := range indegree {
		pending[name] = d
	}

	frontier := []string{topo.Entry()}
	executed := 0

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			// The last appended checkpoint remains a valid resume point.
			return current, err
		}

		if executed+len(frontier) > e.stepCeiling {
			e.logger.Warn("step ceiling reached, terminating run",
				"topology", topo.Name, "executed", executed, "ceiling", e.stepCeiling)
			current = schema.Merge(current, state.State{
				graph.KeyExhausted: true,
				graph.KeyError:     domain.ErrStepCeiling.Error(),
			})
			e.checkpoint(ctx, threadID, current)
			return current, nil
		}

		results := e.runWave(ctx, topo, current, frontier)
		executed += len(frontier)

		for _, res := range results {
			current = schema.Merge(current, res.partial)
		}
		e.checkpoint(ctx, threadID, current)

		frontier = e.nextFrontier(topo, current, pending, indegree, results)
	}

	return current, nil
}

// runWave executes all frontier steps concurrently and returns their
// partials in scheduling order. A step that returns an error or panics
// yields a partial containing only the error field and a diagnostic
// message; siblings already in flight are unaffected.
func (e *Executor) runWave(ctx context.Context, topo *graph.Topology, current state.State, frontier []string) []stepResult {
	results := make([]stepResult, len(frontier))
	var wg sync.WaitGroup

	for i, name := range frontier {
		step, ok := topo.Step(name)
		if !ok {
			results[i] = stepResult{name: name, partial: failurePartial(name, fmt.Errorf("step not declared")), failed: true}
			continue
		}

		wg.Add(1)
		go func(i int, step graph.Step) {
			defer wg.Done()
			started := time.Now()
			partial, err := e.runStep(ctx, step, current.Clone())
			failed := err != nil
			if failed {
				e.logger.Error("step failed", "topology", topo.Name, "step", step.Name, "err", err)
				partial = failurePartial(step.Name, err)
			}
			e.metrics.ObserveStep(topo.Name, step.Name, time.Since(started), failed)
			e.logger.Debug("step completed", "topology", topo.Name, "step", step.Name, "duration", time.Since(started))
			results[i] = stepResult{name: step.Name, partial: partial, failed: failed}
		}(i, step)
	}

	wg.Wait()
	return results
}

// runStep invokes the step function with panic recovery.
func (e *Executor) runStep(ctx context.Context, step graph.Step, view state.State) (partial state.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			partial = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	partial, err = step.Run(ctx, view)
	if err != nil {
		return nil, err
	}
	if partial == nil {
		partial = state.State{}
	}
	return partial, nil
}

// nextFrontier computes the ready set after a merged wave. A step with a
// conditional routes exclusively through it; otherwise static successors
// become ready once all their predecessors have merged. Join counters
// re-arm after firing so the declared loop cycle can run again.
func (e *Executor) nextFrontier(topo *graph.Topology, current state.State, pending, indegree map[string]int, results []stepResult) []string {
	var next []string
	scheduled := make(map[string]bool)

	schedule := func(name string) {
		if name == graph.End || scheduled[name] {
			return
		}
		scheduled[name] = true
		next = append(next, name)
	}

	for _, res := range results {
		if cond, ok := topo.Conditional(res.name); ok {
			target := cond.Route(current)
			if target != graph.End {
				pending[target] = indegree[target]
				schedule(target)
			}
			continue
		}
		for _, succ := range topo.Successors(res.name) {
			if succ == graph.End {
				continue
			}
			pending[succ]--
			if pending[succ] <= 0 {
				pending[succ] = indegree[succ]
				schedule(succ)
			}
		}
	}
	return next
}

// checkpoint appends the current state for the thread, best-effort.
func (e *Executor) checkpoint(ctx context.Context, threadID string, current state.State) {
	if e.store == nil || threadID == "" {
		return
	}
	snap, err := current.Snapshot(threadID)
	if err != nil {
		e.metrics.CheckpointFailed()
		e.logger.Warn("failed to serialize checkpoint", "thread", threadID, "err", err)
		return
	}
	if _, err := e.store.Append(ctx, snap); err != nil {
		e.metrics.CheckpointFailed()
		e.logger.Warn("failed to append checkpoint", "thread", threadID, "err", err)
	}
}

// failurePartial is the step failure policy: the error lands in the shared
// error field with a diagnostic message, and execution continues to fan-in.
func failurePartial(stepName string, err error) state.State {
	msg := fmt.Sprintf("step %s failed: %v", stepName, err)
	return state.State{
		graph.KeyError: msg,
		graph.KeyMessages: []domain.Message{
			domain.NewAssistantMessage(msg),
		},
	}
}
