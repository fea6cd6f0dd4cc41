// Package graph renders compiled topologies for humans.
package graph

import (
	"fmt"
	"strings"

	"github.com/epivigil/epivigil/pkg/graph"
)

const endID = "END"

// GenerateMermaid produces a Mermaid flowchart from a compiled topology.
// The entry step is a circle, routed (conditional) edges are dotted and the
// shared exit is rendered once as a double circle.
func GenerateMermaid(t *graph.Topology) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	entry := t.Entry()
	for _, name := range t.Steps() {
		opener, closer := "[", "]"
		if name == entry {
			opener, closer = "((", "))"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(name), opener, name, closer))
	}
	sb.WriteString(fmt.Sprintf("    %s(((\"end\")))\n", endID))

	for _, e := range t.Edges() {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(e.From), targetID(e.To)))
	}

	for _, name := range t.Steps() {
		c, ok := t.Conditional(name)
		if !ok {
			continue
		}
		for _, target := range c.Targets {
			sb.WriteString(fmt.Sprintf("    %s -. route .-> %s\n", sanitizeMermaidID(name), targetID(target)))
		}
	}

	return sb.String()
}

func targetID(name string) string {
	if name == graph.End {
		return endID
	}
	return sanitizeMermaidID(name)
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
