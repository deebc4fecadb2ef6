package correction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// PostedLine is one line of an originally posted ledger entry.
type PostedLine struct {
	LineID  uuid.UUID
	Account string
	Amount  decimal.Decimal
	Side    Side
}

// PostedEntry is an originally posted ledger entry attributed to an artifact.
// EffectiveDate is the posting date checked against the period authority.
type PostedEntry struct {
	EntryID       uuid.UUID
	EffectiveDate time.Time
	Lines         []PostedLine
}

// PostingSource looks up the entries originally posted for an artifact. An
// artifact with no postings returns an empty slice, not an error.
//
//go:generate mockgen --destination=collaborators_mock.go --package=correction . PostingSource,LedgerWriter,PeriodAuthority
type PostingSource interface {
	PostedEntries(ctx context.Context, ref link.ArtifactRef) ([]PostedEntry, error)
}

// LedgerWriter persists a compensating entry and returns the generated entry
// identifier.
type LedgerWriter interface {
	WriteEntry(ctx context.Context, entry CompensatingEntry) (uuid.UUID, error)
}

// PeriodAuthority reports whether the fiscal period covering an effective
// date is closed. Implementations treat the absence of a covering period as
// open; only an explicit "closed" blocks a correction.
type PeriodAuthority interface {
	IsClosed(ctx context.Context, effectiveDate time.Time) (bool, error)
}

// OpenPeriods is a PeriodAuthority that reports every period as open.
type OpenPeriods struct{}

// IsClosed implements PeriodAuthority.
func (OpenPeriods) IsClosed(_ context.Context, _ time.Time) (bool, error) {
	return false, nil
}
