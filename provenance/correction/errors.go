package correction

import (
	"errors"
	"fmt"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// ErrDryRunPlan refuses execution of an analysis-only plan.
var ErrDryRunPlan = errors.New("dry-run plans cannot be executed")

// AlreadyCorrectedError rejects a correction of an artifact that already has
// a corrected_by child.
type AlreadyCorrectedError struct {
	Ref        link.ArtifactRef
	Correction link.ArtifactRef
}

// Error implements error.
func (e AlreadyCorrectedError) Error() string {
	return fmt.Sprintf("artifact %s is already corrected by %s", e.Ref, e.Correction)
}

// DepthExceededError rejects a plan whose cascade reaches past the depth
// bound; truncating silently would hide affected artifacts.
type DepthExceededError struct {
	Root     link.ArtifactRef
	MaxDepth int
}

// Error implements error.
func (e DepthExceededError) Error() string {
	return fmt.Sprintf("cascade from %s exceeds max depth %d", e.Root, e.MaxDepth)
}

// CascadeBlockedError rejects execution of a cascade plan containing a
// blocked artifact, citing the first offender.
type CascadeBlockedError struct {
	Ref    link.ArtifactRef
	Reason string
	Depth  int
}

// Error implements error.
func (e CascadeBlockedError) Error() string {
	return fmt.Sprintf("cascade blocked at depth %d: %s (%s)", e.Depth, e.Ref, e.Reason)
}

// ClosedPeriodError reports a posting date in a closed fiscal period.
// PeriodAuthority implementations may return it when they can attribute the
// closed period to a specific artifact.
type ClosedPeriodError struct {
	Ref link.ArtifactRef
}

// Error implements error.
func (e ClosedPeriodError) Error() string {
	return fmt.Sprintf("artifact %s is posted into a closed period", e.Ref)
}
