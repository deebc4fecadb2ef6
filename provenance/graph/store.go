package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/log"
)

const tracerName = "provenance/graph"

var oneHundred = decimal.NewFromInt(100)

// Store is the link graph service. It owns the edge set exclusively and is the
// single source of truth for what is consumed or corrected so far.
//
// The store is request-scoped, not internally threaded: each operation runs to
// completion within one unit of work against the repository. Duplicate,
// cycle, and max-children checks are read-then-write sequences; the final
// insert is made safe by the repository's uniqueness constraint.
type Store struct {
	repo   EdgeRepository
	locker PairLocker
	logger log.Logger
	tracer trace.Tracer
}

// PairLocker serializes Establish attempts on one edge key across writers.
// Without it, two racers both pass the pre-checks and one burns an insert on
// the uniqueness constraint; with it, the loser waits and sees the winner's
// edge in its own pre-check.
type PairLocker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// StoreOption configures optional Store collaborators.
type StoreOption func(*Store)

// WithLogger sets the structured logger used by the store.
func WithLogger(logger log.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer sets the tracer used to instrument store operations.
func WithTracer(tracer trace.Tracer) StoreOption {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithPairLocker sets the lock serializing writes of the same edge key.
func WithPairLocker(locker PairLocker) StoreOption {
	return func(s *Store) {
		if locker != nil {
			s.locker = locker
		}
	}
}

// NewStore creates a link graph store over the given repository.
func NewStore(repo EdgeRepository, opts ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, errors.New("edge repository is required")
	}

	store := &Store{
		repo:   repo,
		logger: log.NewNop(),
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// EstablishResult reports the persisted (or replayed) edge. Duplicate is true
// when an identical edge already existed and duplicates were tolerated.
type EstablishResult struct {
	Link      link.EconomicLink
	Duplicate bool
}

// Establish persists a validated edge after enforcing duplicate, acyclicity,
// and max-children rules. No partial edge is ever persisted: every failure is
// the rejection of the whole write attempt.
//
// With allowDuplicate true, an existing edge with the same (type, parent,
// child) key is returned marked as a duplicate, making replays idempotent.
func (s *Store) Establish(ctx context.Context, edge link.EconomicLink, allowDuplicate bool) (EstablishResult, error) {
	ctx, span := s.tracer.Start(ctx, "graph.establish", trace.WithAttributes(
		attribute.String("link.type", string(edge.Type)),
		attribute.String("link.parent", edge.Parent.String()),
		attribute.String("link.child", edge.Child.String()),
	))
	defer span.End()

	if s.locker != nil {
		var result EstablishResult

		err := s.locker.WithLock(ctx, "provenance:edge:"+edge.Key(), func(ctx context.Context) error {
			var establishErr error
			result, establishErr = s.establish(ctx, edge, allowDuplicate)

			return establishErr
		})

		return result, err
	}

	return s.establish(ctx, edge, allowDuplicate)
}

func (s *Store) establish(ctx context.Context, edge link.EconomicLink, allowDuplicate bool) (EstablishResult, error) {
	existing, err := s.repo.Find(ctx, edge.Type, edge.Parent, edge.Child)

	switch {
	case err == nil:
		return s.resolveDuplicate(ctx, existing, allowDuplicate)
	case !errors.Is(err, ErrEdgeNotFound):
		return EstablishResult{}, fmt.Errorf("duplicate pre-check: %w", err)
	}

	if edge.Type.Acyclic() {
		if err := s.checkAcyclic(ctx, edge); err != nil {
			return EstablishResult{}, err
		}
	}

	if limit := edge.Type.MaxChildren(); limit > 0 {
		children, err := s.repo.ListByParent(ctx, edge.Parent, edge.Type)
		if err != nil {
			return EstablishResult{}, fmt.Errorf("max-children check: %w", err)
		}

		if len(children) >= limit {
			return EstablishResult{}, MaxChildrenError{
				Type:    edge.Type,
				Parent:  edge.Parent,
				Limit:   limit,
				Current: len(children),
			}
		}
	}

	if err := s.repo.Insert(ctx, edge); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// Lost a race to a concurrent insert: the constraint fired after
			// the pre-check passed. Re-query and apply duplicate semantics.
			raced, findErr := s.repo.Find(ctx, edge.Type, edge.Parent, edge.Child)
			if findErr != nil {
				return EstablishResult{}, fmt.Errorf("re-query after uniqueness violation: %w", findErr)
			}

			return s.resolveDuplicate(ctx, raced, allowDuplicate)
		}

		return EstablishResult{}, fmt.Errorf("insert edge: %w", err)
	}

	s.logger.Log(ctx, log.LevelDebug, "edge established",
		log.String("type", string(edge.Type)),
		log.String("parent", edge.Parent.String()),
		log.String("child", edge.Child.String()),
	)

	return EstablishResult{Link: edge}, nil
}

func (s *Store) resolveDuplicate(ctx context.Context, existing link.EconomicLink, allowDuplicate bool) (EstablishResult, error) {
	if !allowDuplicate {
		return EstablishResult{}, DuplicateEdgeError{Existing: existing}
	}

	s.logger.Log(ctx, log.LevelDebug, "duplicate edge replayed",
		log.String("type", string(existing.Type)),
		log.String("parent", existing.Parent.String()),
	)

	return EstablishResult{Link: existing, Duplicate: true}, nil
}

// checkAcyclic refuses the insert when the proposed parent is reachable from
// the proposed child following only edges of the same link type. The search
// is an iterative breadth-first traversal with an explicit queue and a
// visited set, so chain depth is bounded by memory rather than stack.
func (s *Store) checkAcyclic(ctx context.Context, edge link.EconomicLink) error {
	type node struct {
		ref  link.ArtifactRef
		prev *node
	}

	visited := map[link.ArtifactRef]struct{}{edge.Child: {}}
	queue := []*node{{ref: edge.Child}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.ref == edge.Parent {
			path := make([]link.ArtifactRef, 0)
			for n := current; n != nil; n = n.prev {
				path = append([]link.ArtifactRef{n.ref}, path...)
			}

			return CycleError{Type: edge.Type, Path: path}
		}

		children, err := s.repo.ListByParent(ctx, current.ref, edge.Type)
		if err != nil {
			return fmt.Errorf("cycle check: %w", err)
		}

		for _, child := range children {
			if _, seen := visited[child.Child]; seen {
				continue
			}

			visited[child.Child] = struct{}{}
			queue = append(queue, &node{ref: child.Child, prev: current})
		}
	}

	return nil
}

// Children returns every edge from parent, optionally filtered by link type.
func (s *Store) Children(ctx context.Context, parent link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error) {
	return s.repo.ListByParent(ctx, parent, types...)
}

// Parents returns every edge into child, optionally filtered by link type.
func (s *Store) Parents(ctx context.Context, child link.ArtifactRef, types ...link.LinkType) ([]link.EconomicLink, error) {
	return s.repo.ListByChild(ctx, child, types...)
}

// Get returns the edge with the exact (type, parent, child) key, or
// ErrEdgeNotFound.
func (s *Store) Get(ctx context.Context, linkType link.LinkType, parent, child link.ArtifactRef) (link.EconomicLink, error) {
	return s.repo.Find(ctx, linkType, parent, child)
}

// ConsumptionSummary is the derived running balance of a parent artifact. It
// is always recomputed from the edge set, never cached, so it cannot drift
// from the ledger of edges.
type ConsumptionSummary struct {
	Remaining  decimal.Decimal
	Consumed   decimal.Decimal
	Children   int
	// ConsumedPercent is consumed over original scaled to 100. Zero when the
	// original amount is zero.
	ConsumedPercent decimal.Decimal
}

// UnconsumedValue sums the payload fact selected by field across matching
// child edges of parent and subtracts it from originalAmount. The identity
// remaining + consumed == original holds for all inputs.
func (s *Store) UnconsumedValue(ctx context.Context, parent link.ArtifactRef, originalAmount decimal.Decimal, field link.ValueField, types ...link.LinkType) (ConsumptionSummary, error) {
	consumed, count, err := s.sumChildren(ctx, parent, field, types...)
	if err != nil {
		return ConsumptionSummary{}, err
	}

	summary := ConsumptionSummary{
		Remaining: originalAmount.Sub(consumed),
		Consumed:  consumed,
		Children:  count,
	}

	if !originalAmount.IsZero() {
		summary.ConsumedPercent = consumed.Div(originalAmount).Mul(oneHundred)
	}

	return summary, nil
}

// TotalAllocated sums the payload fact selected by field across matching
// child edges of parent.
func (s *Store) TotalAllocated(ctx context.Context, parent link.ArtifactRef, field link.ValueField, types ...link.LinkType) (decimal.Decimal, error) {
	total, _, err := s.sumChildren(ctx, parent, field, types...)
	return total, err
}

func (s *Store) sumChildren(ctx context.Context, parent link.ArtifactRef, field link.ValueField, types ...link.LinkType) (decimal.Decimal, int, error) {
	children, err := s.repo.ListByParent(ctx, parent, types...)
	if err != nil {
		return decimal.Decimal{}, 0, fmt.Errorf("list children: %w", err)
	}

	total := decimal.Zero

	for _, child := range children {
		if value, ok := link.PayloadValue(child.Payload, field); ok {
			total = total.Add(value)
		}
	}

	return total, len(children), nil
}
