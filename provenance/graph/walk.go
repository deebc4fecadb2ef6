package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// Direction selects which way Walk follows edges.
type Direction int

const (
	// DirectionDown follows edges parent-to-child.
	DirectionDown Direction = iota
	// DirectionUp follows edges child-to-parent.
	DirectionUp
)

// Path is one simple path discovered by Walk. Refs always starts with the
// walk's start artifact; Edges is empty only for the depth-zero path.
type Path struct {
	Artifact link.ArtifactRef
	Depth    int
	Refs     []link.ArtifactRef
	Edges    []link.EconomicLink
}

// WalkResult bundles every simple path reachable within the depth bound.
// Truncated is true when at least one artifact on the deepest level still has
// unexplored edges beyond the bound.
type WalkResult struct {
	Start     link.ArtifactRef
	Paths     []Path
	MaxDepth  int
	Truncated bool
}

// Walk performs a breadth-first traversal from start, following only edges of
// the given link types (all types when none are given), and returns every
// simple path reachable within maxDepth. Depth zero returns the start
// artifact alone with no edges.
func (s *Store) Walk(ctx context.Context, start link.ArtifactRef, direction Direction, maxDepth int, types ...link.LinkType) (WalkResult, error) {
	ctx, span := s.tracer.Start(ctx, "graph.walk", trace.WithAttributes(
		attribute.String("walk.start", start.String()),
		attribute.Int("walk.max_depth", maxDepth),
	))
	defer span.End()

	if maxDepth < 0 {
		return WalkResult{}, fmt.Errorf("max depth cannot be negative: %d", maxDepth)
	}

	result := WalkResult{Start: start, MaxDepth: maxDepth}

	root := Path{
		Artifact: start,
		Refs:     []link.ArtifactRef{start},
	}
	result.Paths = append(result.Paths, root)

	frontier := []Path{root}

	for depth := 0; len(frontier) > 0; depth++ {
		var next []Path

		for _, current := range frontier {
			edges, err := s.neighbors(ctx, current.Artifact, direction, types...)
			if err != nil {
				return WalkResult{}, err
			}

			for _, edge := range edges {
				target := edge.Child
				if direction == DirectionUp {
					target = edge.Parent
				}

				if containsRef(current.Refs, target) {
					// Revisiting a node on this path would make it non-simple.
					continue
				}

				if depth >= maxDepth {
					result.Truncated = true
					continue
				}

				extended := Path{
					Artifact: target,
					Depth:    depth + 1,
					Refs:     appendRef(current.Refs, target),
					Edges:    appendEdge(current.Edges, edge),
				}

				result.Paths = append(result.Paths, extended)
				next = append(next, extended)
			}
		}

		frontier = next
	}

	return result, nil
}

func (s *Store) neighbors(ctx context.Context, ref link.ArtifactRef, direction Direction, types ...link.LinkType) ([]link.EconomicLink, error) {
	if direction == DirectionUp {
		edges, err := s.repo.ListByChild(ctx, ref, types...)
		if err != nil {
			return nil, fmt.Errorf("walk parents of %s: %w", ref, err)
		}

		return edges, nil
	}

	edges, err := s.repo.ListByParent(ctx, ref, types...)
	if err != nil {
		return nil, fmt.Errorf("walk children of %s: %w", ref, err)
	}

	return edges, nil
}

func containsRef(refs []link.ArtifactRef, ref link.ArtifactRef) bool {
	for _, candidate := range refs {
		if candidate == ref {
			return true
		}
	}

	return false
}

// appendRef and appendEdge copy before appending so sibling paths never share
// backing arrays.
func appendRef(refs []link.ArtifactRef, ref link.ArtifactRef) []link.ArtifactRef {
	out := make([]link.ArtifactRef, len(refs), len(refs)+1)
	copy(out, refs)

	return append(out, ref)
}

func appendEdge(edges []link.EconomicLink, edge link.EconomicLink) []link.EconomicLink {
	out := make([]link.EconomicLink, len(edges), len(edges)+1)
	copy(out, edges)

	return append(out, edge)
}
