package valuation

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

// CostingMethod selects the strategy used to draw value from lots.
type CostingMethod string

const (
	// MethodFIFO consumes the oldest lots first.
	MethodFIFO CostingMethod = "fifo"
	// MethodLIFO consumes the newest lots first.
	MethodLIFO CostingMethod = "lifo"
	// MethodSpecific consumes one explicitly named lot.
	MethodSpecific CostingMethod = "specific"
	// MethodStandard consumes at a registered per-unit standard cost and
	// reports the variance against actual FIFO cost.
	MethodStandard CostingMethod = "standard"
)

// Valid reports whether the costing method is part of the closed enumeration.
func (m CostingMethod) Valid() bool {
	switch m {
	case MethodFIFO, MethodLIFO, MethodSpecific, MethodStandard:
		return true
	}

	return false
}

// CostLot is an immutable batch of received inventory at a fixed unit cost.
// Remaining quantity is never stored on the lot; it is derived from
// consumed_by edges in the link graph.
type CostLot struct {
	ID        uuid.UUID        `json:"id"`
	ItemID    string           `json:"itemId"`
	Location  string           `json:"location,omitempty"`
	LotDate   time.Time        `json:"lotDate"`
	Quantity  decimal.Decimal  `json:"quantity"`
	TotalCost decimal.Decimal  `json:"totalCost"`
	Currency  string           `json:"currency"`
	Method    CostingMethod    `json:"method"`
	Source    link.ArtifactRef `json:"source"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Ref returns the lot's artifact reference in the link graph.
func (l CostLot) Ref() link.ArtifactRef {
	return link.ArtifactRef{Type: link.ArtifactCostLot, ID: l.ID}
}

// UnitCost returns total cost over quantity at full precision. A zero
// quantity yields zero rather than dividing by zero; the constructor refuses
// such lots, so the guard only matters for zero values built by hand.
func (l CostLot) UnitCost() decimal.Decimal {
	if l.Quantity.IsZero() {
		return decimal.Zero
	}

	return l.TotalCost.Div(l.Quantity)
}

// CostLayer is the transient view joining a lot with its currently derived
// remaining quantity and value.
type CostLayer struct {
	Lot               CostLot
	RemainingQuantity decimal.Decimal
	RemainingValue    decimal.Decimal
}

// LotInput is the caller-supplied description of a new cost lot.
type LotInput struct {
	ItemID    string
	Location  string
	LotDate   time.Time
	Quantity  decimal.Decimal
	TotalCost decimal.Decimal
	Currency  string
	Method    CostingMethod
	// Source is the artifact that created the lot (receipt, bill, ...); a
	// sourced_from edge is recorded from it to the lot for audit.
	Source link.ArtifactRef
	// EventID is the business event creating the lot.
	EventID uuid.UUID
}

func (in LotInput) validate() error {
	if strings.TrimSpace(in.ItemID) == "" {
		return link.NewDomainError(link.ErrorInvalidPayload, "itemId", "item id is required")
	}

	if in.LotDate.IsZero() {
		return link.NewDomainError(link.ErrorInvalidPayload, "lotDate", "lot date is required")
	}

	if !in.Quantity.IsPositive() {
		return link.NewDomainError(link.ErrorInvalidPayload, "quantity", "quantity must be greater than zero")
	}

	if in.TotalCost.IsNegative() {
		return link.NewDomainError(link.ErrorInvalidPayload, "totalCost", "total cost cannot be negative")
	}

	if strings.TrimSpace(in.Currency) == "" {
		return link.NewDomainError(link.ErrorInvalidPayload, "currency", "currency is required")
	}

	if !in.Method.Valid() {
		return link.NewDomainError(link.ErrorInvalidPayload, "method", "unknown costing method")
	}

	if err := in.Source.Validate(); err != nil {
		return err
	}

	if in.EventID == uuid.Nil {
		return link.NewDomainError(link.ErrorMissingProvenance, "eventId", "creating event id is required")
	}

	return nil
}
