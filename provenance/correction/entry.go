package correction

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// Side marks a line as a debit or a credit.
type Side string

const (
	// SideDebit marks a debit line.
	SideDebit Side = "debit"
	// SideCredit marks a credit line.
	SideCredit Side = "credit"
)

// Opposite returns the mirrored side.
func (s Side) Opposite() Side {
	if s == SideDebit {
		return SideCredit
	}

	return SideDebit
}

// CompensatingLine is one line of a compensating entry.
type CompensatingLine struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	Side    Side            `json:"side"`
	// SourceLineID points at the originally posted line this one mirrors,
	// when the entry was generated rather than caller-supplied.
	SourceLineID uuid.UUID `json:"sourceLineId,omitempty"`
}

func (l CompensatingLine) validate(field string) error {
	if strings.TrimSpace(l.Account) == "" {
		return link.NewDomainError(link.ErrorInvalidPayload, field+".account", "account is required")
	}

	if !l.Amount.IsPositive() {
		return link.NewDomainError(link.ErrorInvalidPayload, field+".amount", "line amount must be greater than zero")
	}

	if l.Side != SideDebit && l.Side != SideCredit {
		return link.NewDomainError(link.ErrorInvalidPayload, field+".side", "side must be debit or credit")
	}

	return nil
}

// CompensatingEntry reverses a previously posted entry. The double-entry
// invariant (total debits equal total credits, at least one line) is enforced
// at construction and can never be violated afterwards because the value is
// treated as immutable once built.
type CompensatingEntry struct {
	// Target is the artifact whose postings this entry compensates.
	Target link.ArtifactRef `json:"target"`
	// SourceEntryID is the originally posted entry being mirrored. Nil for
	// caller-supplied adjustment entries.
	SourceEntryID uuid.UUID          `json:"sourceEntryId,omitempty"`
	Description   string             `json:"description"`
	Lines         []CompensatingLine `json:"lines"`
}

// NewCompensatingEntry constructs a balanced compensating entry or fails with
// a construction-time domain error.
func NewCompensatingEntry(target link.ArtifactRef, sourceEntryID uuid.UUID, description string, lines []CompensatingLine) (CompensatingEntry, error) {
	if err := target.Validate(); err != nil {
		return CompensatingEntry{}, err
	}

	if len(lines) == 0 {
		return CompensatingEntry{}, link.NewDomainError(link.ErrorInvalidPayload, "lines", "compensating entry must have at least one line")
	}

	debits := decimal.Zero
	credits := decimal.Zero

	for _, line := range lines {
		if err := line.validate("lines"); err != nil {
			return CompensatingEntry{}, err
		}

		switch line.Side {
		case SideDebit:
			debits = debits.Add(line.Amount)
		case SideCredit:
			credits = credits.Add(line.Amount)
		}
	}

	if !debits.Equal(credits) {
		return CompensatingEntry{}, link.NewDomainError(
			link.ErrorInvalidPayload,
			"lines",
			"compensating entry is unbalanced: debits "+debits.String()+" != credits "+credits.String(),
		)
	}

	return CompensatingEntry{
		Target:        target,
		SourceEntryID: sourceEntryID,
		Description:   description,
		Lines:         lines,
	}, nil
}

// MirrorEntry generates the compensating entry for one posted entry by
// flipping every line's side. Flipping preserves the debit/credit equality of
// the original, so the result is balanced by construction.
func MirrorEntry(target link.ArtifactRef, posted PostedEntry, description string) (CompensatingEntry, error) {
	lines := make([]CompensatingLine, 0, len(posted.Lines))

	for _, original := range posted.Lines {
		lines = append(lines, CompensatingLine{
			Account:      original.Account,
			Amount:       original.Amount,
			Side:         original.Side.Opposite(),
			SourceLineID: original.LineID,
		})
	}

	return NewCompensatingEntry(target, posted.EntryID, description, lines)
}
