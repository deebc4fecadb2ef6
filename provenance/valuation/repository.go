package valuation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLotExists is returned by a repository when a lot id is inserted twice.
var ErrLotExists = errors.New("cost lot already exists")

// ErrLotNotFound is returned by a repository when no lot matches the id.
var ErrLotNotFound = errors.New("cost lot not found")

// LotFilter narrows ListByItem results. Zero-value fields are ignored.
type LotFilter struct {
	Location string
	// AsOf keeps only lots dated at or before this instant.
	AsOf *time.Time
}

// LotRepository is the persistence boundary for cost lots. Lots are
// append-only: there is no update or delete.
//
//go:generate mockgen --destination=repository_mock.go --package=valuation . LotRepository
type LotRepository interface {
	// Insert persists a lot. Returns ErrLotExists on id collision.
	Insert(ctx context.Context, lot CostLot) error

	// Get returns the lot with the given id, or ErrLotNotFound.
	Get(ctx context.Context, id uuid.UUID) (CostLot, error)

	// ListByItem returns every lot for the item matching the filter, ordered
	// by lot date ascending then creation time.
	ListByItem(ctx context.Context, itemID string, filter LotFilter) ([]CostLot, error)
}

// MemoryLotRepository is a mutex-guarded in-memory LotRepository used by unit
// tests and non-durable callers.
type MemoryLotRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]CostLot
	byItem map[string][]uuid.UUID
}

// Compile-time assertion: *MemoryLotRepository implements LotRepository.
var _ LotRepository = (*MemoryLotRepository)(nil)

// NewMemoryLotRepository creates an empty in-memory lot repository.
func NewMemoryLotRepository() *MemoryLotRepository {
	return &MemoryLotRepository{
		byID:   make(map[uuid.UUID]CostLot),
		byItem: make(map[string][]uuid.UUID),
	}
}

// Insert implements LotRepository.
func (r *MemoryLotRepository) Insert(_ context.Context, lot CostLot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[lot.ID]; exists {
		return ErrLotExists
	}

	r.byID[lot.ID] = lot
	r.byItem[lot.ItemID] = append(r.byItem[lot.ItemID], lot.ID)

	return nil
}

// Get implements LotRepository.
func (r *MemoryLotRepository) Get(_ context.Context, id uuid.UUID) (CostLot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lot, ok := r.byID[id]
	if !ok {
		return CostLot{}, ErrLotNotFound
	}

	return lot, nil
}

// ListByItem implements LotRepository.
func (r *MemoryLotRepository) ListByItem(_ context.Context, itemID string, filter LotFilter) ([]CostLot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lots := make([]CostLot, 0, len(r.byItem[itemID]))

	for _, id := range r.byItem[itemID] {
		lot := r.byID[id]

		if filter.Location != "" && lot.Location != filter.Location {
			continue
		}

		if filter.AsOf != nil && lot.LotDate.After(*filter.AsOf) {
			continue
		}

		lots = append(lots, lot)
	}

	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].LotDate.Equal(lots[j].LotDate) {
			return lots[i].LotDate.Before(lots[j].LotDate)
		}

		return lots[i].CreatedAt.Before(lots[j].CreatedAt)
	})

	return lots, nil
}
