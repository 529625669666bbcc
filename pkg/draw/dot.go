// Package draw renders a container dependency graph to Graphviz DOT.
package draw

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/unokit/uno"
	"github.com/unokit/uno/pkg/dag"
)

type dotRenderer struct {
	*strings.Builder

	graph *dag.DAG[string, *uno.ServiceDescriptor]

	out map[string]int
	in  map[string]int
}

// RenderDOT renders the graph in Graphviz DOT format. Singletons are drawn
// as ellipses, scoped services as boxes, transients as diamonds; services
// nothing depends on are highlighted as entry points.
func RenderDOT(graph *dag.DAG[string, *uno.ServiceDescriptor]) []byte {
	renderer := &dotRenderer{Builder: &strings.Builder{}, graph: graph}

	return renderer.render()
}

func (r *dotRenderer) render() []byte {
	adjacency, _ := r.graph.AdjacencyMap()
	predecessors, _ := r.graph.PredecessorMap()

	r.out = make(map[string]int, len(adjacency))
	r.in = make(map[string]int, len(predecessors))
	for key, targets := range adjacency {
		r.out[key] = len(targets)
	}
	for key, sources := range predecessors {
		r.in[key] = len(sources)
	}

	keys := slices.Sorted(maps.Keys(adjacency))

	r.WriteString(`
	digraph DependencyGraph {
		graph [size="15,30"];
		fontname="Helvetica,Arial,sans-serif"
		node [fontname="Helvetica,Arial,sans-serif"]
		edge [fontname="Helvetica,Arial,sans-serif"]
	`)

	for _, key := range keys {
		vertex, _ := r.graph.Vertex(key)
		r.renderVertex(vertex)
	}

	for _, source := range keys {
		for _, target := range slices.Sorted(maps.Keys(adjacency[source])) {
			r.renderEdge(source, target)
		}
	}

	r.WriteString("}")

	return []byte(r.String())
}

func (r *dotRenderer) vertexShape(vertex *uno.ServiceDescriptor) string {
	switch vertex.Lifetime() {
	case uno.Scoped:
		return "box"
	case uno.Transient:
		return "diamond"
	default:
		if r.out[vertex.Key()] == 0 {
			return "house"
		}
		return "ellipse"
	}
}

func (r *dotRenderer) vertexColor(vertex *uno.ServiceDescriptor) string {
	if r.in[vertex.Key()] == 0 {
		return "indianred1"
	}
	return "transparent"
}

func (r *dotRenderer) edgeStyle(source, target string) string {
	if strings.HasPrefix(target, "*") && strings.HasPrefix(source, "*") {
		return "solid"
	}

	if strings.HasPrefix(target, "*") || strings.HasPrefix(source, "*") {
		return "dashed"
	}
	return "dotted"
}

func (r *dotRenderer) renderVertex(vertex *uno.ServiceDescriptor) {
	fmt.Fprintf(r, `%s [label="%s", tooltip="%s", shape="%s", fillcolor="%s", style="filled"]`,
		sanitizeID(vertex.Key()), simplifyName(vertex.Key()), vertex, r.vertexShape(vertex), r.vertexColor(vertex),
	)
	r.WriteRune('\n')
}

func (r *dotRenderer) renderEdge(source, target string) {
	fmt.Fprintf(r, `%s -> %s [style="%s"]`, sanitizeID(source), sanitizeID(target), r.edgeStyle(source, target))
	r.WriteRune('\n')
}

func sanitizeID(id string) string {
	return strings.NewReplacer("*", "", ".", "_", "/", "_", "-", "_", "[", "_", "]", "_").Replace(id)
}

func simplifyName(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	if strings.HasPrefix(name, "*") {
		return "*" + last
	}
	return last
}
