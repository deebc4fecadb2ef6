package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

func newTestStore(t *testing.T) (*Store, *MemoryRepository) {
	t.Helper()

	repo := NewMemoryRepository()

	store, err := NewStore(repo)
	require.NoError(t, err)

	return store, repo
}

func ref(t *testing.T, artifactType link.ArtifactType) link.ArtifactRef {
	t.Helper()

	r, err := link.NewArtifactRef(artifactType, uuid.New())
	require.NoError(t, err)

	return r
}

func edge(t *testing.T, linkType link.LinkType, parent, child link.ArtifactRef, payload link.Payload) link.EconomicLink {
	t.Helper()

	e, err := link.NewEconomicLink(linkType, parent, child, uuid.New(), payload)
	require.NoError(t, err)

	return e
}

// ---------------------------------------------------------------------------
// Establish -- duplicates
// ---------------------------------------------------------------------------

func TestEstablishPersistsEdge(t *testing.T) {
	t.Parallel()

	store, repo := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)

	result, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 1, repo.Len())

	stored, err := store.Get(ctx, link.LinkFulfilledBy, po, receipt)
	require.NoError(t, err)
	assert.Equal(t, result.Link.ID, stored.ID)
}

func TestEstablishDuplicateRejected(t *testing.T) {
	t.Parallel()

	store, repo := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)

	first, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)

	_, err = store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.Error(t, err)

	var dupErr DuplicateEdgeError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, first.Link.ID, dupErr.Existing.ID)

	// The rejected write left nothing behind.
	assert.Equal(t, 1, repo.Len())
}

func TestEstablishDuplicateTolerated(t *testing.T) {
	t.Parallel()

	store, repo := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)

	first, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)

	replayed, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), true)
	require.NoError(t, err)
	assert.True(t, replayed.Duplicate)
	assert.Equal(t, first.Link.ID, replayed.Link.ID)
	assert.Equal(t, 1, repo.Len())
}

// racingRepository forces the first Insert to report a uniqueness violation
// after planting the competing edge, simulating a lost race.
type racingRepository struct {
	*MemoryRepository
	competing link.EconomicLink
	raced     bool
}

func (r *racingRepository) Insert(ctx context.Context, e link.EconomicLink) error {
	if !r.raced {
		r.raced = true

		if err := r.MemoryRepository.Insert(ctx, r.competing); err != nil {
			return err
		}

		return ErrDuplicateKey
	}

	return r.MemoryRepository.Insert(ctx, e)
}

func TestEstablishRecoversFromInsertRace(t *testing.T) {
	t.Parallel()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)
	competing := edge(t, link.LinkFulfilledBy, po, receipt, nil)

	t.Run("duplicates tolerated returns the winner", func(t *testing.T) {
		repo := &racingRepository{MemoryRepository: NewMemoryRepository(), competing: competing}

		store, err := NewStore(repo)
		require.NoError(t, err)

		result, err := store.Establish(context.Background(), edge(t, link.LinkFulfilledBy, po, receipt, nil), true)
		require.NoError(t, err)
		assert.True(t, result.Duplicate)
		assert.Equal(t, competing.ID, result.Link.ID)
	})

	t.Run("duplicates rejected surfaces the conflict", func(t *testing.T) {
		repo := &racingRepository{MemoryRepository: NewMemoryRepository(), competing: competing}

		store, err := NewStore(repo)
		require.NoError(t, err)

		_, err = store.Establish(context.Background(), edge(t, link.LinkFulfilledBy, po, receipt, nil), false)

		var dupErr DuplicateEdgeError
		require.True(t, errors.As(err, &dupErr))
		assert.Equal(t, competing.ID, dupErr.Existing.ID)
	})
}

// ---------------------------------------------------------------------------
// Establish -- cycles
// ---------------------------------------------------------------------------

func TestEstablishRejectsCycle(t *testing.T) {
	t.Parallel()

	store, repo := newTestStore(t)
	ctx := context.Background()

	a := ref(t, link.ArtifactInvoice)
	b := ref(t, link.ArtifactInvoice)
	c := ref(t, link.ArtifactInvoice)

	_, err := store.Establish(ctx, edge(t, link.LinkDerivedFrom, a, b, nil), false)
	require.NoError(t, err)
	_, err = store.Establish(ctx, edge(t, link.LinkDerivedFrom, b, c, nil), false)
	require.NoError(t, err)

	// c -> a would close a derivation cycle.
	_, err = store.Establish(ctx, edge(t, link.LinkDerivedFrom, c, a, nil), false)
	require.Error(t, err)

	var cycleErr CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, link.LinkDerivedFrom, cycleErr.Type)
	assert.Equal(t, []link.ArtifactRef{a, b, c}, cycleErr.Path)
	assert.Equal(t, 2, repo.Len())
}

func TestEstablishCycleCheckScopedToLinkType(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	a := ref(t, link.ArtifactInvoice)
	b := ref(t, link.ArtifactInvoice)

	_, err := store.Establish(ctx, edge(t, link.LinkDerivedFrom, a, b, nil), false)
	require.NoError(t, err)

	// A matched_with edge in the other direction does not participate in the
	// derived_from reachability check.
	_, err = store.Establish(ctx, edge(t, link.LinkMatchedWith, b, a, nil), false)
	require.NoError(t, err)
}

func TestNoArtifactReachableFromItself(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	refs := make([]link.ArtifactRef, 6)
	for i := range refs {
		refs[i] = ref(t, link.ArtifactInvoice)
	}

	// Arbitrary insert sequence restricted to one acyclic type; some succeed,
	// cycle-closing attempts fail.
	attempts := [][2]int{{0, 1}, {1, 2}, {2, 0}, {1, 3}, {3, 4}, {4, 1}, {4, 5}, {5, 0}, {0, 5}}
	for _, pair := range attempts {
		_, err := store.Establish(ctx, edge(t, link.LinkDerivedFrom, refs[pair[0]], refs[pair[1]], nil), false)
		_ = err
	}

	// Property: no artifact is reachable from itself via derived_from.
	for _, start := range refs {
		result, err := store.Walk(ctx, start, DirectionDown, len(refs), link.LinkDerivedFrom)
		require.NoError(t, err)

		for _, path := range result.Paths {
			if path.Depth == 0 {
				continue
			}

			assert.NotEqual(t, start, path.Artifact, "artifact %s reachable from itself", start)
		}
	}
}

// ---------------------------------------------------------------------------
// Establish -- max children
// ---------------------------------------------------------------------------

func TestEstablishMaxChildrenExceeded(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	entry := ref(t, link.ArtifactJournalEntry)
	reversalOne := ref(t, link.ArtifactJournalEntry)
	reversalTwo := ref(t, link.ArtifactJournalEntry)

	_, err := store.Establish(ctx, edge(t, link.LinkReversedBy, entry, reversalOne, nil), false)
	require.NoError(t, err)

	_, err = store.Establish(ctx, edge(t, link.LinkReversedBy, entry, reversalTwo, nil), false)
	require.Error(t, err)

	var maxErr MaxChildrenError
	require.True(t, errors.As(err, &maxErr))
	assert.Equal(t, link.LinkReversedBy, maxErr.Type)
	assert.Equal(t, entry, maxErr.Parent)
	assert.Equal(t, 1, maxErr.Limit)
	assert.Equal(t, 1, maxErr.Current)
}

// ---------------------------------------------------------------------------
// UnconsumedValue
// ---------------------------------------------------------------------------

func TestUnconsumedValueInvoiceFullySettled(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	invoice := ref(t, link.ArtifactInvoice)
	original := decimal.NewFromInt(1000)

	for _, amount := range []int64{600, 400} {
		payment := ref(t, link.ArtifactPayment)
		applied := link.AppliedAmount{Amount: decimal.NewFromInt(amount), Currency: "USD"}

		_, err := store.Establish(ctx, edge(t, link.LinkPaidBy, invoice, payment, applied), false)
		require.NoError(t, err)
	}

	summary, err := store.UnconsumedValue(ctx, invoice, original, link.ValueAmount, link.LinkPaidBy)
	require.NoError(t, err)

	assert.True(t, summary.Remaining.IsZero(), "remaining = %s", summary.Remaining)
	assert.True(t, summary.Consumed.Equal(original))
	assert.Equal(t, 2, summary.Children)
	assert.True(t, summary.ConsumedPercent.Equal(decimal.NewFromInt(100)))
}

func TestUnconsumedValueIdentityAndMonotonicity(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	invoice := ref(t, link.ArtifactInvoice)
	original := decimal.RequireFromString("750.25")

	previous := original

	for _, amount := range []string{"100.10", "0.15", "333.33"} {
		payment := ref(t, link.ArtifactPayment)
		applied := link.AppliedAmount{Amount: decimal.RequireFromString(amount), Currency: "USD"}

		_, err := store.Establish(ctx, edge(t, link.LinkPaidBy, invoice, payment, applied), false)
		require.NoError(t, err)

		summary, err := store.UnconsumedValue(ctx, invoice, original, link.ValueAmount, link.LinkPaidBy)
		require.NoError(t, err)

		// remaining + consumed == original, for every prefix of inserts.
		assert.True(t, summary.Remaining.Add(summary.Consumed).Equal(original))

		// remaining is non-increasing as consuming children are added.
		assert.True(t, summary.Remaining.LessThanOrEqual(previous))
		previous = summary.Remaining
	}
}

func TestUnconsumedValueZeroOriginal(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	summary, err := store.UnconsumedValue(context.Background(), ref(t, link.ArtifactInvoice), decimal.Zero, link.ValueAmount, link.LinkPaidBy)
	require.NoError(t, err)
	assert.True(t, summary.Remaining.IsZero())
	assert.True(t, summary.ConsumedPercent.IsZero())
}

func TestTotalAllocated(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	report := ref(t, link.ArtifactExpenseReport)

	for _, amount := range []int64{70, 30} {
		entry := ref(t, link.ArtifactJournalEntry)
		applied := link.AppliedAmount{Amount: decimal.NewFromInt(amount), Currency: "USD"}

		_, err := store.Establish(ctx, edge(t, link.LinkAllocatedTo, report, entry, applied), false)
		require.NoError(t, err)
	}

	total, err := store.TotalAllocated(ctx, report, link.ValueAmount, link.LinkAllocatedTo)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(100)))
}

// ---------------------------------------------------------------------------
// Walk
// ---------------------------------------------------------------------------

func TestWalkDepthZero(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)

	_, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)

	result, err := store.Walk(ctx, po, DirectionDown, 0)
	require.NoError(t, err)

	require.Len(t, result.Paths, 1)
	assert.Equal(t, po, result.Paths[0].Artifact)
	assert.Equal(t, 0, result.Paths[0].Depth)
	assert.Empty(t, result.Paths[0].Edges)
	assert.True(t, result.Truncated)
}

func TestWalkChain(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)
	invoice := ref(t, link.ArtifactInvoice)

	_, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)
	_, err = store.Establish(ctx, edge(t, link.LinkFulfilledBy, receipt, invoice, nil), false)
	require.NoError(t, err)

	result, err := store.Walk(ctx, po, DirectionDown, 10, link.LinkFulfilledBy)
	require.NoError(t, err)
	assert.False(t, result.Truncated)
	require.Len(t, result.Paths, 3)

	byArtifact := make(map[link.ArtifactRef]Path, len(result.Paths))
	for _, path := range result.Paths {
		byArtifact[path.Artifact] = path
	}

	assert.Equal(t, 0, byArtifact[po].Depth)
	assert.Equal(t, 1, byArtifact[receipt].Depth)
	assert.Equal(t, 2, byArtifact[invoice].Depth)
	assert.Len(t, byArtifact[invoice].Edges, 2)
	assert.Equal(t, []link.ArtifactRef{po, receipt, invoice}, byArtifact[invoice].Refs)
}

func TestWalkUpward(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)

	_, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)

	result, err := store.Walk(ctx, receipt, DirectionUp, 5, link.LinkFulfilledBy)
	require.NoError(t, err)
	require.Len(t, result.Paths, 2)
	assert.Equal(t, po, result.Paths[1].Artifact)
}

func TestWalkTruncationFlag(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)
	invoice := ref(t, link.ArtifactInvoice)

	_, err := store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), false)
	require.NoError(t, err)
	_, err = store.Establish(ctx, edge(t, link.LinkFulfilledBy, receipt, invoice, nil), false)
	require.NoError(t, err)

	truncated, err := store.Walk(ctx, po, DirectionDown, 1, link.LinkFulfilledBy)
	require.NoError(t, err)
	assert.True(t, truncated.Truncated)

	complete, err := store.Walk(ctx, po, DirectionDown, 2, link.LinkFulfilledBy)
	require.NoError(t, err)
	assert.False(t, complete.Truncated)
}

func TestWalkNegativeDepth(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.Walk(context.Background(), ref(t, link.ArtifactPurchaseOrder), DirectionDown, -1)
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Pair locking
// ---------------------------------------------------------------------------

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()

	return fn(ctx)
}

func TestEstablishRunsUnderPairLock(t *testing.T) {
	t.Parallel()

	locker := &recordingLocker{}

	store, err := NewStore(NewMemoryRepository(), WithPairLocker(locker))
	require.NoError(t, err)

	ctx := context.Background()

	po := ref(t, link.ArtifactPurchaseOrder)
	receipt := ref(t, link.ArtifactReceipt)

	proposed := edge(t, link.LinkFulfilledBy, po, receipt, nil)

	result, err := store.Establish(ctx, proposed, false)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)

	require.Len(t, locker.keys, 1)
	assert.Equal(t, "provenance:edge:"+proposed.Key(), locker.keys[0])

	// A duplicate attempt locks the same key and sees the winner's edge.
	_, err = store.Establish(ctx, edge(t, link.LinkFulfilledBy, po, receipt, nil), true)
	require.NoError(t, err)
	require.Len(t, locker.keys, 2)
	assert.Equal(t, locker.keys[0], locker.keys[1])
}
