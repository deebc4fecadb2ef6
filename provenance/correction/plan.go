package correction

import (
	"time"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// Strategy selects how a plan is built and whether it may execute.
type Strategy string

const (
	// StrategyDryRun builds a terminal, analysis-only plan: blocked artifacts
	// become warnings, no compensating entries are generated, and execution
	// is always refused.
	StrategyDryRun Strategy = "dry_run"
	// StrategyCascade unwinds the root and everything reachable downstream.
	// Execution refuses the whole plan if any artifact is blocked.
	StrategyCascade Strategy = "cascade"
	// StrategySingle unwinds only the root artifact, with caller-supplied
	// entries when the correction is narrower than a full reversal.
	StrategySingle Strategy = "single"
)

// Valid reports whether the strategy is part of the closed enumeration.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyDryRun, StrategyCascade, StrategySingle:
		return true
	}

	return false
}

// CorrectionType classifies why a correction is being made.
type CorrectionType string

const (
	// TypeVoid cancels a document as if it never happened.
	TypeVoid CorrectionType = "void"
	// TypeAdjustment narrows a document's value without cancelling it.
	TypeAdjustment CorrectionType = "adjustment"
	// TypeReversal unwinds a posting mistake.
	TypeReversal CorrectionType = "reversal"
	// TypeReclass moves value between accounts with no net change.
	TypeReclass CorrectionType = "reclass"
)

// Valid reports whether the correction type is part of the closed enumeration.
func (t CorrectionType) Valid() bool {
	switch t {
	case TypeVoid, TypeAdjustment, TypeReversal, TypeReclass:
		return true
	}

	return false
}

// DownstreamLinkTypes is the fixed set of link types a correction cascade
// follows from the root.
func DownstreamLinkTypes() []link.LinkType {
	return []link.LinkType{
		link.LinkFulfilledBy,
		link.LinkSourcedFrom,
		link.LinkDerivedFrom,
		link.LinkConsumedBy,
		link.LinkPaidBy,
	}
}

// AffectedArtifact is one artifact a plan would unwind, with the evidence of
// how it was reached and whether it can legally be unwound.
type AffectedArtifact struct {
	Ref   link.ArtifactRef
	Depth int
	// Path is the artifact chain from the root to this artifact, inclusive.
	Path []link.ArtifactRef
	// ReachedBy is the link type of the edge that reached this artifact;
	// empty for the root.
	ReachedBy link.LinkType
	// HasPostings is true when the posting source returned at least one
	// entry for this artifact.
	HasPostings bool
	// CanUnwind is false when the artifact is already corrected, already
	// reversed, or posted into a closed period.
	CanUnwind bool
	// BlockedReason explains a false CanUnwind.
	BlockedReason string
}

// UnwindPlan is the complete, inspectable snapshot of what a correction would
// affect. A plan is built once and never mutated; executing it writes the
// entries and edges it describes.
type UnwindPlan struct {
	Root           link.ArtifactRef
	Strategy       Strategy
	CorrectionType CorrectionType
	MaxDepth       int
	BuiltAt        time.Time
	Affected       []AffectedArtifact
	Entries        []CompensatingEntry
	// Warnings lists blocked artifacts in human-readable form; a DRY_RUN or
	// CASCADE plan can always be produced for inspection even when parts of
	// it cannot later execute.
	Warnings []string
}

// MaxObservedDepth returns the deepest affected artifact's depth.
func (p UnwindPlan) MaxObservedDepth() int {
	depth := 0
	for _, affected := range p.Affected {
		if affected.Depth > depth {
			depth = affected.Depth
		}
	}

	return depth
}

// FirstBlocked returns the shallowest blocked artifact, if any.
func (p UnwindPlan) FirstBlocked() (AffectedArtifact, bool) {
	for _, affected := range p.Affected {
		if !affected.CanUnwind {
			return affected, true
		}
	}

	return AffectedArtifact{}, false
}

func (p UnwindPlan) validate() error {
	if len(p.Affected) == 0 {
		return link.NewDomainError(link.ErrorInvalidPayload, "affected", "plan has no affected artifacts")
	}

	if p.Affected[0].Ref != p.Root || p.Affected[0].Depth != 0 {
		return link.NewDomainError(link.ErrorInvalidPayload, "root", "plan root does not match its first affected artifact")
	}

	return nil
}
