package graph

import (
	"fmt"
	"strings"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// DuplicateEdgeError rejects an insert whose (type, parent, child) key already
// exists and duplicates were not tolerated. Existing carries the edge found.
type DuplicateEdgeError struct {
	Existing link.EconomicLink
}

// Error implements error.
func (e DuplicateEdgeError) Error() string {
	return fmt.Sprintf(
		"duplicate edge: %s from %s to %s already exists (id %s)",
		e.Existing.Type, e.Existing.Parent, e.Existing.Child, e.Existing.ID,
	)
}

// CycleError rejects an insert that would close a cycle of edges of one
// acyclic link type. Path is the discovered chain from the proposed child back
// to the proposed parent.
type CycleError struct {
	Type link.LinkType
	Path []link.ArtifactRef
}

// Error implements error.
func (e CycleError) Error() string {
	parts := make([]string, 0, len(e.Path))
	for _, ref := range e.Path {
		parts = append(parts, ref.String())
	}

	return fmt.Sprintf("cycle detected for link type %s: %s", e.Type, strings.Join(parts, " -> "))
}

// MaxChildrenError rejects an insert that would exceed the link type's
// per-parent child bound.
type MaxChildrenError struct {
	Type    link.LinkType
	Parent  link.ArtifactRef
	Limit   int
	Current int
}

// Error implements error.
func (e MaxChildrenError) Error() string {
	return fmt.Sprintf(
		"max children exceeded: %s already has %d of %d allowed %s children",
		e.Parent, e.Current, e.Limit, e.Type,
	)
}
