package graph

import (
	"fmt"
)

// Builder assembles a Topology. Errors are collected and reported by
// Compile so call sites can chain declarations fluently.
type Builder struct {
	topo *Topology
	errs []error
}

// NewBuilder starts a topology with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		topo: &Topology{
			Name:         name,
			steps:        make(map[string]Step),
			conditionals: make(map[string]Conditional),
		},
	}
}

// AddStep declares a step. Names must be unique within the topology.
func (b *Builder) AddStep(s Step) *Builder {
	if s.Name == "" || s.Name == End {
		b.errs = append(b.errs, fmt.Errorf("invalid step name %q", s.Name))
		return b
	}
	if s.Run == nil {
		b.errs = append(b.errs, fmt.Errorf("step %q has no run function", s.Name))
		return b
	}
	if _, dup := b.topo.steps[s.Name]; dup {
		b.errs = append(b.errs, fmt.Errorf("duplicate step name %q", s.Name))
		return b
	}
	b.topo.steps[s.Name] = s
	b.topo.order = append(b.topo.order, s.Name)
	return b
}

// AddEdge declares that to runs after from. Use End as the target to mark
// the exit of a branch.
func (b *Builder) AddEdge(from, to string) *Builder {
	b.topo.edges = append(b.topo.edges, Edge{From: from, To: to})
	return b
}

// AddConditional attaches dynamic routing to a step. The router's result
// must be one of targets or End.
func (b *Builder) AddConditional(from string, route Router, targets ...string) *Builder {
	if route == nil {
		b.errs = append(b.errs, fmt.Errorf("conditional on %q has no router", from))
		return b
	}
	if _, dup := b.topo.conditionals[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("step %q already has a conditional", from))
		return b
	}
	b.topo.conditionals[from] = Conditional{From: from, Route: route, Targets: targets}
	return b
}

// SetEntry marks the entry step.
func (b *Builder) SetEntry(name string) *Builder {
	b.topo.entry = name
	return b
}

// AllowCycle permits exactly the bounded-cycle shape used by the autonomous
// loop. Without it, Compile rejects any cycle.
func (b *Builder) AllowCycle() *Builder {
	b.topo.allowCycle = true
	return b
}

// Compile validates the declarations and returns the immutable topology.
func (b *Builder) Compile() (*Topology, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("topology %q: %w", b.topo.Name, b.errs[0])
	}
	t := b.topo

	if t.entry == "" {
		return nil, fmt.Errorf("topology %q: no entry step", t.Name)
	}
	if _, ok := t.steps[t.entry]; !ok {
		return nil, fmt.Errorf("topology %q: entry step %q not declared", t.Name, t.entry)
	}
	for _, e := range t.edges {
		if _, ok := t.steps[e.From]; !ok {
			return nil, fmt.Errorf("topology %q: edge from unknown step %q", t.Name, e.From)
		}
		if e.To != End {
			if _, ok := t.steps[e.To]; !ok {
				return nil, fmt.Errorf("topology %q: edge to unknown step %q", t.Name, e.To)
			}
		}
	}
	for from, c := range t.conditionals {
		if _, ok := t.steps[from]; !ok {
			return nil, fmt.Errorf("topology %q: conditional on unknown step %q", t.Name, from)
		}
		for _, target := range c.Targets {
			if target == End {
				continue
			}
			if _, ok := t.steps[target]; !ok {
				return nil, fmt.Errorf("topology %q: conditional target %q not declared", t.Name, target)
			}
		}
	}
	if !t.allowCycle {
		if err := t.checkAcyclic(); err != nil {
			return nil, fmt.Errorf("topology %q: %w", t.Name, err)
		}
	}
	if err := t.checkReachesEnd(); err != nil {
		return nil, fmt.Errorf("topology %q: %w", t.Name, err)
	}
	return t, nil
}

// MustCompile compiles or panics. For topologies assembled at startup.
func (b *Builder) MustCompile() *Topology {
	t, err := b.Compile()
	if err != nil {
		panic(err)
	}
	return t
}

// checkAcyclic runs Kahn's algorithm over static and conditional edges.
func (t *Topology) checkAcyclic() error {
	indegree := make(map[string]int, len(t.steps))
	succ := make(map[string][]string, len(t.steps))
	for name := range t.steps {
		indegree[name] = 0
	}
	addEdge := func(from, to string) {
		if to == End {
			return
		}
		succ[from] = append(succ[from], to)
		indegree[to]++
	}
	for _, e := range t.edges {
		addEdge(e.From, e.To)
	}
	for from, c := range t.conditionals {
		for _, target := range c.Targets {
			addEdge(from, target)
		}
	}

	var queue []string
	for name, d := range indegree {
		if d == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range succ[n] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(t.steps) {
		return fmt.Errorf("cycle detected among steps")
	}
	return nil
}

// checkReachesEnd ensures at least one edge or conditional target is End.
func (t *Topology) checkReachesEnd() error {
	for _, e := range t.edges {
		if e.To == End {
			return nil
		}
	}
	for _, c := range t.conditionals {
		for _, target := range c.Targets {
			if target == End {
				return nil
			}
		}
	}
	return fmt.Errorf("no path reaches the exit marker")
}
