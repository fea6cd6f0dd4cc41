package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epivigil/epivigil/pkg/adapters/memory"
	"github.com/epivigil/epivigil/pkg/graph"
	"github.com/epivigil/epivigil/pkg/state"
)

func testSchema() *state.Schema {
	return state.NewSchema().
		AddField("log", state.Field{Reducer: state.Append}).
		AddField(graph.KeyMessages, state.Field{Reducer: state.Append}).
		AddField(graph.KeyError, state.Field{Reducer: state.KeepLatest}).
		AddField(graph.KeyExhausted, state.Field{Reducer: state.KeepLatest})
}

// logStep appends its own name to the log field.
func logStep(name string) graph.StepFunc {
	return func(_ context.Context, _ state.State) (state.State, error) {
		return state.State{"log": []any{name}, name: "done"}, nil
	}
}

func TestRunLinear(t *testing.T) {
	topo, err := graph.NewBuilder("linear").
		AddStep(graph.Step{Name: "a", Run: logStep("a")}).
		AddStep(graph.Step{Name: "b", Run: logStep("b")}).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", graph.End).
		Compile()
	require.NoError(t, err)

	out, err := New().Run(context.Background(), topo, testSchema(), state.State{}, "")
	require.NoError(t, err)

	assert.Equal(t, []any{"a", "b"}, out["log"])
}

// Fan-in waits for every predecessor: the join step must observe all three
// branch outputs in its view.
func TestFanOutFanIn(t *testing.T) {
	var mu sync.Mutex
	var joinView state.State

	branch := func(name string, delay time.Duration) graph.StepFunc {
		return func(_ context.Context, _ state.State) (state.State, error) {
			time.Sleep(delay)
			return state.State{name: "done", "log": []any{name}}, nil
		}
	}

	topo, err := graph.NewBuilder("fan").
		AddStep(graph.Step{Name: "start", Run: logStep("start")}).
		AddStep(graph.Step{Name: "m", Run: branch("m", 30*time.Millisecond)}).
		AddStep(graph.Step{Name: "n", Run: branch("n", 0)}).
		AddStep(graph.Step{Name: "c", Run: branch("c", 10*time.Millisecond)}).
		AddStep(graph.Step{Name: "join", Run: func(_ context.Context, s state.State) (state.State, error) {
			mu.Lock()
			joinView = s.Clone()
			mu.Unlock()
			return state.State{"log": []any{"join"}}, nil
		}}).
		SetEntry("start").
		AddEdge("start", "m").
		AddEdge("start", "n").
		AddEdge("start", "c").
		AddEdge("m", "join").
		AddEdge("n", "join").
		AddEdge("c", "join").
		AddEdge("join", graph.End).
		Compile()
	require.NoError(t, err)

	out, err := New().Run(context.Background(), topo, testSchema(), state.State{}, "")
	require.NoError(t, err)

	assert.Equal(t, "done", joinView.String("m"))
	assert.Equal(t, "done", joinView.String("n"))
	assert.Equal(t, "done", joinView.String("c"))

	// Siblings merged in scheduling order, not completion order.
	assert.Equal(t, []any{"start", "m", "n", "c", "join"}, out["log"])
}

// A failing branch records its error and the run still reaches the exit with
// the sibling outputs intact.
func TestStepFailureContinuesToFanIn(t *testing.T) {
	topo, err := graph.NewBuilder("failing").
		AddStep(graph.Step{Name: "start", Run: logStep("start")}).
		AddStep(graph.Step{Name: "ok", Run: logStep("ok")}).
		AddStep(graph.Step{Name: "boom", Run: func(_ context.Context, _ state.State) (state.State, error) {
			return nil, fmt.Errorf("collaborator down")
		}}).
		AddStep(graph.Step{Name: "join", Run: logStep("join")}).
		SetEntry("start").
		AddEdge("start", "ok").
		AddEdge("start", "boom").
		AddEdge("ok", "join").
		AddEdge("boom", "join").
		AddEdge("join", graph.End).
		Compile()
	require.NoError(t, err)

	out, err := New().Run(context.Background(), topo, testSchema(), state.State{}, "")
	require.NoError(t, err)

	assert.Contains(t, out.String(graph.KeyError), "step boom failed")
	assert.Contains(t, out.String(graph.KeyError), "collaborator down")
	assert.Equal(t, "done", out.String("ok"))
	assert.Equal(t, "done", out.String("join"))
}

// A panicking step is contained like an error.
func TestStepPanicContained(t *testing.T) {
	topo, err := graph.NewBuilder("panicky").
		AddStep(graph.Step{Name: "a", Run: func(_ context.Context, _ state.State) (state.State, error) {
			panic("bad index")
		}}).
		AddStep(graph.Step{Name: "b", Run: logStep("b")}).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", graph.End).
		Compile()
	require.NoError(t, err)

	out, err := New().Run(context.Background(), topo, testSchema(), state.State{}, "")
	require.NoError(t, err)

	assert.Contains(t, out.String(graph.KeyError), "panic")
	assert.Equal(t, "done", out.String("b"))
}

// The declared cycle re-arms until the router exits; the ceiling bounds it.
func TestCycleBoundedByCeiling(t *testing.T) {
	iterations := 0
	topo, err := graph.NewBuilder("loop").
		AddStep(graph.Step{Name: "think", Run: func(_ context.Context, _ state.State) (state.State, error) {
			iterations++
			return state.State{"log": []any{"think"}}, nil
		}}).
		AddStep(graph.Step{Name: "act", Run: logStep("act")}).
		SetEntry("think").
		AddConditional("think", func(state.State) string { return "act" }, "act", graph.End).
		AddEdge("act", "think").
		AllowCycle().
		Compile()
	require.NoError(t, err)

	out, err := New(WithStepCeiling(5)).Run(context.Background(), topo, testSchema(), state.State{}, "")
	require.NoError(t, err)

	assert.True(t, out.Bool(graph.KeyExhausted))
	assert.NotEmpty(t, out.String(graph.KeyError))
	assert.LessOrEqual(t, iterations, 5)
}

// The router exits the cycle normally when it picks the end marker.
func TestConditionalRoutesToEnd(t *testing.T) {
	turns := 0
	topo, err := graph.NewBuilder("loop").
		AddStep(graph.Step{Name: "think", Run: func(_ context.Context, _ state.State) (state.State, error) {
			turns++
			return state.State{"log": []any{"think"}}, nil
		}}).
		AddStep(graph.Step{Name: "act", Run: logStep("act")}).
		SetEntry("think").
		AddConditional("think", func(state.State) string {
			if turns >= 2 {
				return graph.End
			}
			return "act"
		}, "act", graph.End).
		AddEdge("act", "think").
		AllowCycle().
		Compile()
	require.NoError(t, err)

	out, err := New().Run(context.Background(), topo, testSchema(), state.State{}, "")
	require.NoError(t, err)

	assert.False(t, out.Bool(graph.KeyExhausted))
	assert.Equal(t, []any{"think", "act", "think"}, out["log"])
}

// Every wave appends one checkpoint for the thread.
func TestCheckpointPerWave(t *testing.T) {
	topo, err := graph.NewBuilder("chk").
		AddStep(graph.Step{Name: "a", Run: logStep("a")}).
		AddStep(graph.Step{Name: "b", Run: logStep("b")}).
		AddStep(graph.Step{Name: "c", Run: logStep("c")}).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", graph.End).
		Compile()
	require.NoError(t, err)

	store := memory.NewStore()
	_, err = New(WithCheckpointStore(store)).Run(context.Background(), topo, testSchema(), state.State{}, "t-1")
	require.NoError(t, err)

	history, err := store.History(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Len(t, history, 3)
	for i, snap := range history {
		assert.Equal(t, i+1, snap.Seq)
	}
}

// Cancellation surfaces the context error with the last merged state.
func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	topo, err := graph.NewBuilder("cancel").
		AddStep(graph.Step{Name: "a", Run: func(_ context.Context, _ state.State) (state.State, error) {
			cancel()
			return state.State{"a": "done"}, nil
		}}).
		AddStep(graph.Step{Name: "b", Run: logStep("b")}).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", graph.End).
		Compile()
	require.NoError(t, err)

	out, err := New().Run(ctx, topo, testSchema(), state.State{}, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "done", out.String("a"))
	assert.Empty(t, out.String("b"))
}
