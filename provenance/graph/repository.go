package graph

import (
	"context"
	"errors"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

var (
	// ErrDuplicateKey is returned by a repository when an insert violates the
	// (type, parent, child) uniqueness constraint. The store re-queries for
	// the now-existing edge rather than leaving the write half-applied.
	ErrDuplicateKey = errors.New("edge already exists for (type, parent, child)")
	// ErrEdgeNotFound is returned by Find when no matching edge exists.
	ErrEdgeNotFound = errors.New("edge not found")
)

// EdgeRepository is the persistence boundary for the edge set. Implementations
// must enforce the uniqueness constraint themselves so a duplicate insert
// under a race is rejected, not silently accepted twice.
//
//go:generate mockgen --destination=repository_mock.go --package=graph . EdgeRepository
type EdgeRepository interface {
	// Insert persists an edge. Returns ErrDuplicateKey when an edge with the
	// same (type, parent, child) key already exists.
	Insert(ctx context.Context, edge link.EconomicLink) error

	// ListByParent returns every edge whose parent matches ref, optionally
	// filtered to the given link types, ordered by creation time.
	ListByParent(ctx context.Context, ref link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error)

	// ListByChild returns every edge whose child matches ref, optionally
	// filtered to the given link types, ordered by creation time.
	ListByChild(ctx context.Context, ref link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error)

	// Find returns the edge with the exact (type, parent, child) key, or
	// ErrEdgeNotFound.
	Find(ctx context.Context, linkType link.LinkType, parent, child link.ArtifactRef) (link.EconomicLink, error)
}
