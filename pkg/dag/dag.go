// Package dag wraps github.com/dominikbraun/graph with the small directed
// acyclic graph surface the container needs to track service dependencies.
package dag

import (
	"errors"
	"slices"

	"github.com/dominikbraun/graph"
)

// DAG is a directed acyclic graph of T vertices keyed by K.
type DAG[K comparable, T any] struct {
	graph.Graph[K, T]
}

func New[K comparable, T any](hash graph.Hash[K, T]) *DAG[K, T] {
	return &DAG[K, T]{
		graph.New(hash, graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
	}
}

func (d *DAG[K, T]) AddVertexIfNotExist(vertex T) error {
	err := d.AddVertex(vertex)
	if errors.Is(err, graph.ErrVertexAlreadyExists) {
		return nil
	}
	return err
}

// AddEdgeIfNotExist records a dependency edge. Duplicate edges are fine.
// Edges that would close a cycle are dropped too: they only appear through
// lazy references and configuration hooks, where construction order is
// already settled, and the graph stays sortable.
func (d *DAG[K, T]) AddEdgeIfNotExist(sourceHash, targetHash K, options ...func(*graph.EdgeProperties)) error {
	err := d.AddEdge(sourceHash, targetHash, options...)
	if errors.Is(err, graph.ErrEdgeAlreadyExists) || errors.Is(err, graph.ErrEdgeCreatesCycle) {
		return nil
	}
	return err
}

func (d *DAG[K, T]) Vertices() []T {
	// graph.Graph does not have a way to get the list of its vertices.
	// https://github.com/dominikbraun/graph/pull/149

	adjMap, _ := d.AdjacencyMap()

	vertices := make([]T, 0, len(adjMap))
	for hash := range adjMap {
		vertex, _ := d.Vertex(hash)

		vertices = append(vertices, vertex)
	}

	return vertices
}

func (d *DAG[K, T]) ForEachVertex(fn func(T) error) error {
	for _, vertex := range d.Vertices() {
		if err := fn(vertex); err != nil {
			return err
		}
	}
	return nil
}

func (d *DAG[K, T]) InTopologicalOrder(fn func(T) error) error {
	order, err := graph.TopologicalSort(d.Graph)
	if err != nil {
		return err
	}

	for _, hash := range order {
		vertex, _ := d.Vertex(hash)

		if err := fn(vertex); err != nil {
			return err
		}
	}
	return nil
}

func (d *DAG[K, T]) InReverseTopologicalOrder(fn func(T) error) error {
	order, err := graph.TopologicalSort(d.Graph)
	if err != nil {
		return err
	}
	slices.Reverse(order)

	for _, hash := range order {
		vertex, _ := d.Vertex(hash)

		if err := fn(vertex); err != nil {
			return err
		}
	}
	return nil
}
