package correction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/graph"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/log"
)

const tracerName = "provenance/correction"

// DefaultMaxDepth bounds a cascade when the caller does not set one.
const DefaultMaxDepth = 10

// Engine builds and executes unwind plans. It never touches posting storage
// directly: all graph state flows through the link graph store and all ledger
// state through the injected collaborators.
type Engine struct {
	graph    *graph.Store
	postings PostingSource
	ledger   LedgerWriter
	periods  PeriodAuthority
	logger   log.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithLogger sets the structured logger used by the engine.
func WithLogger(logger log.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTracer sets the tracer used to instrument engine operations.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a correction engine. A nil period authority treats every
// period as open.
func NewEngine(graphStore *graph.Store, postings PostingSource, ledger LedgerWriter, periods PeriodAuthority, opts ...EngineOption) (*Engine, error) {
	if graphStore == nil {
		return nil, errors.New("graph store is required")
	}

	if postings == nil {
		return nil, errors.New("posting source is required")
	}

	if ledger == nil {
		return nil, errors.New("ledger writer is required")
	}

	if periods == nil {
		periods = OpenPeriods{}
	}

	engine := &Engine{
		graph:    graphStore,
		postings: postings,
		ledger:   ledger,
		periods:  periods,
		logger:   log.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine, nil
}

// BuildOption adjusts plan building.
type BuildOption func(*buildConfig)

type buildConfig struct {
	maxDepth int
}

// WithMaxDepth overrides the cascade depth bound.
func WithMaxDepth(depth int) BuildOption {
	return func(c *buildConfig) {
		c.maxDepth = depth
	}
}

// BuildUnwindPlan snapshots everything a correction of root would affect.
// Blocked artifacts are recorded as warnings, never raised, so a DRY_RUN or
// CASCADE plan can always be produced for inspection; the only build-time
// failures are an already-corrected root and a cascade deeper than the bound.
func (e *Engine) BuildUnwindPlan(ctx context.Context, root link.ArtifactRef, strategy Strategy, correctionType CorrectionType, opts ...BuildOption) (UnwindPlan, error) {
	ctx, span := e.tracer.Start(ctx, "correction.build_unwind_plan", trace.WithAttributes(
		attribute.String("correction.root", root.String()),
		attribute.String("correction.strategy", string(strategy)),
	))
	defer span.End()

	if err := root.Validate(); err != nil {
		return UnwindPlan{}, err
	}

	if !strategy.Valid() {
		return UnwindPlan{}, link.NewDomainError(link.ErrorInvalidPayload, "strategy", fmt.Sprintf("unknown strategy %q", string(strategy)))
	}

	if !correctionType.Valid() {
		return UnwindPlan{}, link.NewDomainError(link.ErrorInvalidPayload, "correctionType", fmt.Sprintf("unknown correction type %q", string(correctionType)))
	}

	cfg := buildConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := e.rejectIfCorrected(ctx, root); err != nil {
		return UnwindPlan{}, err
	}

	affected, err := e.discoverAffected(ctx, root, strategy, cfg.maxDepth)
	if err != nil {
		return UnwindPlan{}, err
	}

	plan := UnwindPlan{
		Root:           root,
		Strategy:       strategy,
		CorrectionType: correctionType,
		MaxDepth:       cfg.maxDepth,
		BuiltAt:        e.now(),
		Affected:       affected,
	}

	for i := range plan.Affected {
		if err := e.assess(ctx, &plan.Affected[i]); err != nil {
			return UnwindPlan{}, err
		}

		if !plan.Affected[i].CanUnwind {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf(
				"artifact %s at depth %d cannot be unwound: %s",
				plan.Affected[i].Ref, plan.Affected[i].Depth, plan.Affected[i].BlockedReason,
			))
		}
	}

	if strategy != StrategyDryRun {
		if err := e.generateEntries(ctx, &plan); err != nil {
			return UnwindPlan{}, err
		}
	}

	e.logger.Log(ctx, log.LevelInfo, "unwind plan built",
		log.String("root", root.String()),
		log.String("strategy", string(strategy)),
		log.Int("affected", len(plan.Affected)),
		log.Int("entries", len(plan.Entries)),
		log.Int("warnings", len(plan.Warnings)),
	)

	return plan, nil
}

func (e *Engine) rejectIfCorrected(ctx context.Context, ref link.ArtifactRef) error {
	corrections, err := e.graph.Children(ctx, ref, link.LinkCorrectedBy)
	if err != nil {
		return fmt.Errorf("check corrected_by of %s: %w", ref, err)
	}

	if len(corrections) > 0 {
		return AlreadyCorrectedError{Ref: ref, Correction: corrections[0].Child}
	}

	return nil
}

// discoverAffected walks downstream from root and collapses simple paths into
// one affected artifact per reference, keeping the first (shortest) path the
// breadth-first order found.
func (e *Engine) discoverAffected(ctx context.Context, root link.ArtifactRef, strategy Strategy, maxDepth int) ([]AffectedArtifact, error) {
	if strategy == StrategySingle {
		return []AffectedArtifact{{Ref: root, Path: []link.ArtifactRef{root}, CanUnwind: true}}, nil
	}

	walk, err := e.graph.Walk(ctx, root, graph.DirectionDown, maxDepth, DownstreamLinkTypes()...)
	if err != nil {
		return nil, fmt.Errorf("walk downstream of %s: %w", root, err)
	}

	if walk.Truncated {
		return nil, DepthExceededError{Root: root, MaxDepth: maxDepth}
	}

	seen := make(map[link.ArtifactRef]struct{}, len(walk.Paths))
	affected := make([]AffectedArtifact, 0, len(walk.Paths))

	for _, path := range walk.Paths {
		if _, visited := seen[path.Artifact]; visited {
			continue
		}

		seen[path.Artifact] = struct{}{}

		artifact := AffectedArtifact{
			Ref:       path.Artifact,
			Depth:     path.Depth,
			Path:      path.Refs,
			CanUnwind: true,
		}

		if len(path.Edges) > 0 {
			artifact.ReachedBy = path.Edges[len(path.Edges)-1].Type
		}

		affected = append(affected, artifact)
	}

	return affected, nil
}

// assess fills HasPostings and the unwind legality of one affected artifact.
func (e *Engine) assess(ctx context.Context, artifact *AffectedArtifact) error {
	corrections, err := e.graph.Children(ctx, artifact.Ref, link.LinkCorrectedBy)
	if err != nil {
		return fmt.Errorf("check corrected_by of %s: %w", artifact.Ref, err)
	}

	if len(corrections) > 0 {
		artifact.CanUnwind = false
		artifact.BlockedReason = "already corrected"
	}

	reversals, err := e.graph.Children(ctx, artifact.Ref, link.LinkReversedBy)
	if err != nil {
		return fmt.Errorf("check reversed_by of %s: %w", artifact.Ref, err)
	}

	if artifact.CanUnwind && len(reversals) > 0 {
		artifact.CanUnwind = false
		artifact.BlockedReason = "already reversed"
	}

	posted, err := e.postings.PostedEntries(ctx, artifact.Ref)
	if err != nil {
		return fmt.Errorf("look up postings of %s: %w", artifact.Ref, err)
	}

	artifact.HasPostings = len(posted) > 0

	if !artifact.CanUnwind {
		return nil
	}

	for _, entry := range posted {
		closed, err := e.periods.IsClosed(ctx, entry.EffectiveDate)
		if err != nil {
			return fmt.Errorf("check period for %s: %w", artifact.Ref, err)
		}

		if closed {
			artifact.CanUnwind = false
			artifact.BlockedReason = "posted into a closed period"

			break
		}
	}

	return nil
}

// generateEntries mirrors the originally posted lines of every unwindable
// artifact that carries postings.
func (e *Engine) generateEntries(ctx context.Context, plan *UnwindPlan) error {
	for _, artifact := range plan.Affected {
		if !artifact.CanUnwind || !artifact.HasPostings {
			continue
		}

		posted, err := e.postings.PostedEntries(ctx, artifact.Ref)
		if err != nil {
			return fmt.Errorf("look up postings of %s: %w", artifact.Ref, err)
		}

		description := fmt.Sprintf("%s correction of %s", plan.CorrectionType, artifact.Ref)

		for _, original := range posted {
			entry, err := MirrorEntry(artifact.Ref, original, description)
			if err != nil {
				return err
			}

			plan.Entries = append(plan.Entries, entry)
		}
	}

	return nil
}

// Result reports an executed correction.
type Result struct {
	Plan       UnwindPlan
	EntryIDs   []uuid.UUID
	Edges      []link.EconomicLink
	Actor      string
	ExecutedAt time.Time
}

// ExecuteCorrection writes a built plan: every compensating entry goes to the
// ledger writer and every unwindable artifact gains a corrected_by edge to
// the correction document keyed by the triggering event. Edges are
// established with duplicate-tolerant semantics so a retried execution after
// partial failure does not double-link.
func (e *Engine) ExecuteCorrection(ctx context.Context, plan UnwindPlan, actor string, triggeringEvent uuid.UUID) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "correction.execute", trace.WithAttributes(
		attribute.String("correction.root", plan.Root.String()),
		attribute.String("correction.strategy", string(plan.Strategy)),
	))
	defer span.End()

	if plan.Strategy == StrategyDryRun {
		return Result{}, ErrDryRunPlan
	}

	if err := plan.validate(); err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(actor) == "" {
		return Result{}, link.NewDomainError(link.ErrorInvalidPayload, "actor", "actor is required")
	}

	if triggeringEvent == uuid.Nil {
		return Result{}, link.NewDomainError(link.ErrorMissingProvenance, "triggeringEvent", "triggering event id is required")
	}

	if plan.Strategy == StrategyCascade {
		if blocked, ok := plan.FirstBlocked(); ok {
			return Result{}, CascadeBlockedError{
				Ref:    blocked.Ref,
				Reason: blocked.BlockedReason,
				Depth:  blocked.Depth,
			}
		}
	}

	correctionRef := link.ArtifactRef{Type: link.ArtifactCorrection, ID: triggeringEvent}

	// Close the race window between build and execute: the root must still be
	// uncorrected immediately before the first write. A correction by the same
	// triggering event is a resumed retry, not a conflict.
	corrections, err := e.graph.Children(ctx, plan.Root, link.LinkCorrectedBy)
	if err != nil {
		return Result{}, fmt.Errorf("check corrected_by of %s: %w", plan.Root, err)
	}

	if len(corrections) > 0 && corrections[0].Child != correctionRef {
		return Result{}, AlreadyCorrectedError{Ref: plan.Root, Correction: corrections[0].Child}
	}

	result := Result{Plan: plan, Actor: actor, ExecutedAt: e.now()}

	for _, entry := range plan.Entries {
		entryID, err := e.ledger.WriteEntry(ctx, entry)
		if err != nil {
			return Result{}, fmt.Errorf("write compensating entry for %s: %w", entry.Target, err)
		}

		result.EntryIDs = append(result.EntryIDs, entryID)
	}

	for _, artifact := range plan.Affected {
		if !artifact.CanUnwind {
			continue
		}

		payload := link.CorrectionInfo{
			CorrectionType: string(plan.CorrectionType),
			Depth:          artifact.Depth,
			Actor:          actor,
			PlanSize:       len(plan.Affected),
		}

		correctedBy, err := link.NewEconomicLink(link.LinkCorrectedBy, artifact.Ref, correctionRef, triggeringEvent, payload)
		if err != nil {
			return Result{}, err
		}

		established, err := e.graph.Establish(ctx, correctedBy, true)
		if err != nil {
			return Result{}, fmt.Errorf("establish corrected_by for %s: %w", artifact.Ref, err)
		}

		result.Edges = append(result.Edges, established.Link)
	}

	e.logger.Log(ctx, log.LevelInfo, "correction executed",
		log.String("root", plan.Root.String()),
		log.String("actor", actor),
		log.Int("entries_written", len(result.EntryIDs)),
		log.Int("edges_established", len(result.Edges)),
	)

	return result, nil
}

// VoidDocument builds a full cascade plan for root and executes it.
func (e *Engine) VoidDocument(ctx context.Context, root link.ArtifactRef, actor string, triggeringEvent uuid.UUID) (Result, error) {
	plan, err := e.BuildUnwindPlan(ctx, root, StrategyCascade, TypeVoid)
	if err != nil {
		return Result{}, err
	}

	return e.ExecuteCorrection(ctx, plan, actor, triggeringEvent)
}

// AdjustDocument builds a single-artifact, non-cascading plan carrying the
// caller-supplied partial entries and executes it. Every entry must target
// the root and satisfy the double-entry invariant.
func (e *Engine) AdjustDocument(ctx context.Context, root link.ArtifactRef, actor string, triggeringEvent uuid.UUID, entries []CompensatingEntry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, link.NewDomainError(link.ErrorInvalidPayload, "entries", "adjustment requires at least one compensating entry")
	}

	for _, entry := range entries {
		if entry.Target != root {
			return Result{}, link.NewDomainError(
				link.ErrorInvalidPayload,
				"entries",
				fmt.Sprintf("entry targets %s, plan root is %s", entry.Target, root),
			)
		}

		// Re-validate: callers may hand-build the struct.
		if _, err := NewCompensatingEntry(entry.Target, entry.SourceEntryID, entry.Description, entry.Lines); err != nil {
			return Result{}, err
		}
	}

	plan, err := e.BuildUnwindPlan(ctx, root, StrategySingle, TypeAdjustment)
	if err != nil {
		return Result{}, err
	}

	plan.Entries = entries

	return e.ExecuteCorrection(ctx, plan, actor, triggeringEvent)
}

// IsCorrected reports whether ref already has a corrected_by child.
func (e *Engine) IsCorrected(ctx context.Context, ref link.ArtifactRef) (bool, error) {
	corrections, err := e.graph.Children(ctx, ref, link.LinkCorrectedBy)
	if err != nil {
		return false, fmt.Errorf("check corrected_by of %s: %w", ref, err)
	}

	return len(corrections) > 0, nil
}

// CorrectionChain follows corrected_by edges transitively from ref and
// returns them in breadth-first order. A correction may itself later be
// corrected; the chain reconstructs the full history.
func (e *Engine) CorrectionChain(ctx context.Context, ref link.ArtifactRef) ([]link.EconomicLink, error) {
	visited := map[link.ArtifactRef]struct{}{ref: {}}
	queue := []link.ArtifactRef{ref}

	var chain []link.EconomicLink

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		corrections, err := e.graph.Children(ctx, current, link.LinkCorrectedBy)
		if err != nil {
			return nil, fmt.Errorf("follow corrected_by of %s: %w", current, err)
		}

		for _, edge := range corrections {
			chain = append(chain, edge)

			if _, seen := visited[edge.Child]; seen {
				continue
			}

			visited[edge.Child] = struct{}{}
			queue = append(queue, edge.Child)
		}
	}

	return chain, nil
}
