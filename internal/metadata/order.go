package metadata

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"softcascade/internal/core/apperror"
)

// DependencyOrder sorts the given types so that every child type comes before
// the types it references (the order in which soft deletes are applied).
// Self-references are ignored; any other cycle is a CyclicSchema error.
// Types released at the same step are ordered by name, so the result is
// fully deterministic.
func (r *Registry) DependencyOrder(types []string) ([]string, error) {
	g, err := r.typeGraph(types)
	if err != nil {
		return nil, err
	}

	components, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("type graph components: %w", err))
	}
	var cyclic []string
	for _, c := range components {
		if len(c) > 1 {
			cyclic = append(cyclic, c...)
		}
	}
	if len(cyclic) > 0 {
		return nil, apperror.NewCyclicSchema(cyclic)
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("type graph order: %w", err))
	}
	return order, nil
}

// typeGraph builds the directed child -> parent graph over types, dropping
// self-references and edges that leave the set.
func (r *Registry) typeGraph(types []string) (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed())
	for _, t := range types {
		if err := g.AddVertex(t); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, apperror.NewInternal(fmt.Errorf("add type %s: %w", t, err))
		}
	}
	for _, e := range r.edges {
		if e.SelfReference() {
			continue
		}
		err := g.AddEdge(e.Child, e.Parent)
		switch {
		case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists), errors.Is(err, graph.ErrVertexNotFound):
		default:
			return nil, apperror.NewInternal(fmt.Errorf("add edge %s: %w", e, err))
		}
	}
	return g, nil
}
