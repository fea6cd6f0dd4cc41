package graph

import (
	"context"

	"github.com/epivigil/epivigil/pkg/state"
)

// End is the reserved exit marker. Edges and routers may target it; no step
// may use it as a name.
const End = "__end__"

// Reserved state field names the executor writes under the step failure
// policy and the resource-exhaustion rule. Schemas for every topology
// declare them.
const (
	KeyMessages  = "messages"
	KeyError     = "error"
	KeyExhausted = "exhausted"
)

// StepFunc is the unit of work: it reads the current state view and returns
// a partial update containing only the fields it computed. Returning an
// error does not abort the run; the executor converts it into an error-field
// partial so sibling branches and downstream synthesis still run.
type StepFunc func(ctx context.Context, s state.State) (state.State, error)

// Router picks the successor of a step after it has merged. It returns a
// step name or End.
type Router func(s state.State) string

// Step is a named unit of work in a topology.
type Step struct {
	Name string
	Run  StepFunc

	// Reads and Writes document the step's field contract. They are
	// authoring metadata, not runtime enforcement.
	Reads  []string
	Writes []string
}

// Edge declares that To becomes ready only after From has completed and merged.
type Edge struct {
	From string
	To   string
}

// Conditional routes execution dynamically after From completes. Targets
// lists the possible destinations for validation and introspection.
type Conditional struct {
	From    string
	Route   Router
	Targets []string
}

// Topology is an arena-style description of a workflow: steps and edges as
// data, interpreted by the executor. Deterministic topologies are DAGs; a
// topology built with AllowCycle may contain cycles, which the executor
// bounds with its step ceiling.
type Topology struct {
	Name  string
	steps map[string]Step
	order []string

	edges        []Edge
	conditionals map[string]Conditional

	entry      string
	allowCycle bool
}

// Step returns the named step.
func (t *Topology) Step(name string) (Step, bool) {
	s, ok := t.steps[name]
	return s, ok
}

// Steps returns step names in declaration order, for introspection.
func (t *Topology) Steps() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Entry returns the entry step name.
func (t *Topology) Entry() string {
	return t.entry
}

// Edges returns the static edges.
func (t *Topology) Edges() []Edge {
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)
	return out
}

// Conditional returns the conditional routing attached to a step, if any.
func (t *Topology) Conditional(from string) (Conditional, bool) {
	c, ok := t.conditionals[from]
	return c, ok
}

// Successors returns the static successors of a step.
func (t *Topology) Successors(from string) []string {
	var out []string
	for _, e := range t.edges {
		if e.From == from {
			out = append(out, e.To)
		}
	}
	return out
}

// Indegree returns the number of static predecessors per step. The executor
// uses it for fan-in join counting.
func (t *Topology) Indegree() map[string]int {
	in := make(map[string]int, len(t.steps))
	for name := range t.steps {
		in[name] = 0
	}
	for _, e := range t.edges {
		if e.To != End {
			in[e.To]++
		}
	}
	return in
}
