package link

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ArtifactType classifies the financial objects that can participate in the
// provenance graph. The enumeration is closed: a reference carrying any other
// value fails validation.
type ArtifactType string

const (
	// ArtifactPurchaseOrder is a commitment to buy goods or services.
	ArtifactPurchaseOrder ArtifactType = "purchase_order"
	// ArtifactSalesOrder is a commitment to sell goods or services.
	ArtifactSalesOrder ArtifactType = "sales_order"
	// ArtifactReceipt records goods or services received.
	ArtifactReceipt ArtifactType = "receipt"
	// ArtifactShipment records goods dispatched to a counterparty.
	ArtifactShipment ArtifactType = "shipment"
	// ArtifactInvoice is a receivable document issued to a customer.
	ArtifactInvoice ArtifactType = "invoice"
	// ArtifactBill is a payable document received from a supplier.
	ArtifactBill ArtifactType = "bill"
	// ArtifactCreditNote reduces a previously issued receivable.
	ArtifactCreditNote ArtifactType = "credit_note"
	// ArtifactDebitNote increases a previously issued payable.
	ArtifactDebitNote ArtifactType = "debit_note"
	// ArtifactPayment is money moved to settle a document.
	ArtifactPayment ArtifactType = "payment"
	// ArtifactRefund is money returned to a counterparty.
	ArtifactRefund ArtifactType = "refund"
	// ArtifactCostLot is an immutable batch of received inventory value.
	ArtifactCostLot ArtifactType = "cost_lot"
	// ArtifactJournalEntry is a posted double-entry ledger record.
	ArtifactJournalEntry ArtifactType = "journal_entry"
	// ArtifactCorrection is the document generated by a correction run.
	ArtifactCorrection ArtifactType = "correction"
	// ArtifactAdjustment is a narrow, non-cascading value adjustment.
	ArtifactAdjustment ArtifactType = "adjustment"
	// ArtifactInventoryMove records stock transferred between locations.
	ArtifactInventoryMove ArtifactType = "inventory_move"
	// ArtifactExpenseReport aggregates reimbursable employee expenses.
	ArtifactExpenseReport ArtifactType = "expense_report"
	// ArtifactBankTransaction is an imported bank statement line.
	ArtifactBankTransaction ArtifactType = "bank_transaction"
	// ArtifactTaxFiling is a tax return or remittance document.
	ArtifactTaxFiling ArtifactType = "tax_filing"
)

var artifactTypes = map[ArtifactType]struct{}{
	ArtifactPurchaseOrder:   {},
	ArtifactSalesOrder:      {},
	ArtifactReceipt:         {},
	ArtifactShipment:        {},
	ArtifactInvoice:         {},
	ArtifactBill:            {},
	ArtifactCreditNote:      {},
	ArtifactDebitNote:       {},
	ArtifactPayment:         {},
	ArtifactRefund:          {},
	ArtifactCostLot:         {},
	ArtifactJournalEntry:    {},
	ArtifactCorrection:      {},
	ArtifactAdjustment:      {},
	ArtifactInventoryMove:   {},
	ArtifactExpenseReport:   {},
	ArtifactBankTransaction: {},
	ArtifactTaxFiling:       {},
}

// Valid reports whether the artifact type is part of the closed enumeration.
func (t ArtifactType) Valid() bool {
	_, ok := artifactTypes[t]
	return ok
}

// ArtifactRef is a pointer by identity into an artifact owned elsewhere.
// It is a comparable value type with no ownership semantics of its own.
type ArtifactRef struct {
	Type ArtifactType `json:"type"`
	ID   uuid.UUID    `json:"id"`
}

// NewArtifactRef builds a validated artifact reference.
func NewArtifactRef(artifactType ArtifactType, id uuid.UUID) (ArtifactRef, error) {
	ref := ArtifactRef{Type: artifactType, ID: id}
	if err := ref.Validate(); err != nil {
		return ArtifactRef{}, err
	}

	return ref, nil
}

// Validate checks type membership and a non-nil identifier.
func (r ArtifactRef) Validate() error {
	if !r.Type.Valid() {
		return NewDomainError(ErrorInvalidArtifact, "type", fmt.Sprintf("unknown artifact type %q", string(r.Type)))
	}

	if r.ID == uuid.Nil {
		return NewDomainError(ErrorInvalidArtifact, "id", "artifact id is required")
	}

	return nil
}

// IsZero reports whether the reference is the zero value.
func (r ArtifactRef) IsZero() bool {
	return r.Type == "" && r.ID == uuid.Nil
}

// String renders the reference as "type:id".
func (r ArtifactRef) String() string {
	return string(r.Type) + ":" + r.ID.String()
}

// ParseArtifactRef parses the "type:id" form produced by String.
func ParseArtifactRef(s string) (ArtifactRef, error) {
	typePart, idPart, found := strings.Cut(s, ":")
	if !found {
		return ArtifactRef{}, NewDomainError(ErrorInvalidArtifact, "ref", fmt.Sprintf("malformed artifact reference %q", s))
	}

	id, err := uuid.Parse(idPart)
	if err != nil {
		return ArtifactRef{}, NewDomainError(ErrorInvalidArtifact, "id", fmt.Sprintf("malformed artifact id %q", idPart))
	}

	return NewArtifactRef(ArtifactType(typePart), id)
}
