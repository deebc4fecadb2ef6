package graph

import (
	"context"
	"sync"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// MemoryRepository is a mutex-guarded in-memory EdgeRepository. It is the
// reference implementation used by unit tests and by callers that do not need
// durable storage.
type MemoryRepository struct {
	mu       sync.RWMutex
	byKey    map[string]link.EconomicLink
	byParent map[link.ArtifactRef][]string
	byChild  map[link.ArtifactRef][]string
}

// Compile-time assertion: *MemoryRepository implements EdgeRepository.
var _ EdgeRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory edge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byKey:    make(map[string]link.EconomicLink),
		byParent: make(map[link.ArtifactRef][]string),
		byChild:  make(map[link.ArtifactRef][]string),
	}
}

// Insert implements EdgeRepository. The uniqueness constraint on (type,
// parent, child) is enforced under the write lock, mirroring a database
// unique index.
func (r *MemoryRepository) Insert(_ context.Context, edge link.EconomicLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edge.Key()
	if _, exists := r.byKey[key]; exists {
		return ErrDuplicateKey
	}

	r.byKey[key] = edge
	r.byParent[edge.Parent] = append(r.byParent[edge.Parent], key)
	r.byChild[edge.Child] = append(r.byChild[edge.Child], key)

	return nil
}

// ListByParent implements EdgeRepository. Edges are returned in insertion
// order.
func (r *MemoryRepository) ListByParent(_ context.Context, ref link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(r.byParent[ref], types), nil
}

// ListByChild implements EdgeRepository. Edges are returned in insertion
// order.
func (r *MemoryRepository) ListByChild(_ context.Context, ref link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.collect(r.byChild[ref], types), nil
}

// Find implements EdgeRepository.
func (r *MemoryRepository) Find(_ context.Context, linkType link.LinkType, parent, child link.ArtifactRef) (link.EconomicLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	probe := link.EconomicLink{Type: linkType, Parent: parent, Child: child}

	edge, ok := r.byKey[probe.Key()]
	if !ok {
		return link.EconomicLink{}, ErrEdgeNotFound
	}

	return edge, nil
}

// Len returns the number of stored edges.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byKey)
}

func (r *MemoryRepository) collect(keys []string, types []link.LinkType) []link.EconomicLink {
	edges := make([]link.EconomicLink, 0, len(keys))

	for _, key := range keys {
		edge := r.byKey[key]
		if len(types) > 0 && !containsLinkType(types, edge.Type) {
			continue
		}

		edges = append(edges, edge)
	}

	return edges
}

func containsLinkType(types []link.LinkType, t link.LinkType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}

	return false
}
