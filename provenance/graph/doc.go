// Package graph implements the append-only link graph store: edge
// persistence behind an EdgeRepository boundary, uniqueness / acyclicity /
// max-children enforcement on writes, parent/child/path queries, and the
// derived unconsumed-value computation.
//
// Core flow:
//   - Establish validates and persists an edge, or rejects the write with a
//     DuplicateEdgeError, CycleError, or MaxChildrenError.
//   - Children, Parents, Get answer direct lookups.
//   - Walk performs a bounded breadth-first traversal returning simple paths.
//   - UnconsumedValue recomputes a running balance from the edge set; no
//     balance is ever cached in a mutable field.
//
// The edge set is append-only: edges are never updated or deleted.
package graph
