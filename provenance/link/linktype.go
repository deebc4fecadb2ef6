package link

// LinkType classifies the relationship an edge expresses. The enumeration is
// closed; each type (except the DerivedFrom catch-all and the symmetric
// MatchedWith) carries a compatibility entry restricting which artifact types
// may appear on either end.
type LinkType string

const (
	// LinkFulfilledBy connects a commitment to the document that fulfills it.
	LinkFulfilledBy LinkType = "fulfilled_by"
	// LinkPaidBy connects a payable/receivable to the money that settles it.
	LinkPaidBy LinkType = "paid_by"
	// LinkAppliedTo connects a settlement instrument to the document it settles.
	LinkAppliedTo LinkType = "applied_to"
	// LinkReversedBy connects a journal entry to its reversing entry.
	LinkReversedBy LinkType = "reversed_by"
	// LinkCorrectedBy connects an artifact to the correction that unwound it.
	LinkCorrectedBy LinkType = "corrected_by"
	// LinkConsumedBy connects a cost lot to the artifact that drew value from it.
	LinkConsumedBy LinkType = "consumed_by"
	// LinkSourcedFrom connects a source document to the cost lot it created.
	LinkSourcedFrom LinkType = "sourced_from"
	// LinkAllocatedTo distributes value from a pooled document to a target entry.
	LinkAllocatedTo LinkType = "allocated_to"
	// LinkAllocatedFrom records the origin side of a value allocation.
	LinkAllocatedFrom LinkType = "allocated_from"
	// LinkDerivedFrom is the catch-all derivation relationship.
	LinkDerivedFrom LinkType = "derived_from"
	// LinkMatchedWith is the symmetric reconciliation relationship.
	LinkMatchedWith LinkType = "matched_with"
	// LinkAdjustedBy connects a document to a narrow value adjustment.
	LinkAdjustedBy LinkType = "adjusted_by"
)

// Compatibility restricts which artifact types a link type may join and how
// many children a parent may hold. Empty ParentTypes or ChildTypes means any
// artifact type is accepted on that end.
type Compatibility struct {
	ParentTypes []ArtifactType
	ChildTypes  []ArtifactType
	Symmetric   bool
	// MaxChildren bounds the number of children one parent may hold under
	// this type. Zero means unbounded.
	MaxChildren int
	// Acyclic marks types that express a directed derivation; the graph store
	// refuses inserts that would close a cycle of edges of the same type.
	Acyclic bool
	// Payloads lists accepted payload kinds. Empty means no payload accepted;
	// PayloadNone is implicit everywhere.
	Payloads []PayloadKind
}

var compatibilityTable = map[LinkType]Compatibility{
	LinkFulfilledBy: {
		ParentTypes: []ArtifactType{ArtifactPurchaseOrder, ArtifactSalesOrder, ArtifactReceipt, ArtifactShipment},
		ChildTypes:  []ArtifactType{ArtifactReceipt, ArtifactShipment, ArtifactInvoice, ArtifactBill},
		Acyclic:     true,
		Payloads:    []PayloadKind{PayloadNote},
	},
	LinkPaidBy: {
		ParentTypes: []ArtifactType{ArtifactInvoice, ArtifactBill, ArtifactCreditNote, ArtifactDebitNote, ArtifactExpenseReport, ArtifactTaxFiling},
		ChildTypes:  []ArtifactType{ArtifactPayment, ArtifactRefund, ArtifactBankTransaction},
		Payloads:    []PayloadKind{PayloadAppliedAmount},
	},
	LinkAppliedTo: {
		ParentTypes: []ArtifactType{ArtifactPayment, ArtifactRefund, ArtifactCreditNote, ArtifactDebitNote},
		ChildTypes:  []ArtifactType{ArtifactInvoice, ArtifactBill, ArtifactExpenseReport},
		Payloads:    []PayloadKind{PayloadAppliedAmount},
	},
	LinkReversedBy: {
		ParentTypes: []ArtifactType{ArtifactJournalEntry},
		ChildTypes:  []ArtifactType{ArtifactJournalEntry},
		MaxChildren: 1,
		Payloads:    []PayloadKind{PayloadNote},
	},
	LinkCorrectedBy: {
		ChildTypes:  []ArtifactType{ArtifactCorrection},
		MaxChildren: 1,
		Acyclic:     true,
		Payloads:    []PayloadKind{PayloadCorrectionInfo},
	},
	LinkConsumedBy: {
		ParentTypes: []ArtifactType{ArtifactCostLot},
		ChildTypes: []ArtifactType{
			ArtifactShipment, ArtifactInvoice, ArtifactInventoryMove,
			ArtifactJournalEntry, ArtifactAdjustment, ArtifactSalesOrder,
		},
		Acyclic:  true,
		Payloads: []PayloadKind{PayloadConsumption},
	},
	LinkSourcedFrom: {
		ParentTypes: []ArtifactType{
			ArtifactReceipt, ArtifactInvoice, ArtifactBill,
			ArtifactInventoryMove, ArtifactAdjustment,
		},
		ChildTypes: []ArtifactType{ArtifactCostLot},
		Acyclic:    true,
		Payloads:   []PayloadKind{PayloadNote},
	},
	LinkAllocatedTo: {
		ParentTypes: []ArtifactType{ArtifactExpenseReport, ArtifactInvoice, ArtifactBill, ArtifactJournalEntry},
		ChildTypes:  []ArtifactType{ArtifactJournalEntry, ArtifactCostLot},
		Payloads:    []PayloadKind{PayloadAppliedAmount},
	},
	LinkAllocatedFrom: {
		ParentTypes: []ArtifactType{ArtifactJournalEntry, ArtifactCostLot},
		ChildTypes:  []ArtifactType{ArtifactExpenseReport, ArtifactInvoice, ArtifactBill, ArtifactJournalEntry},
		Payloads:    []PayloadKind{PayloadAppliedAmount},
	},
	LinkDerivedFrom: {
		Acyclic:  true,
		Payloads: []PayloadKind{PayloadNote},
	},
	LinkMatchedWith: {
		Symmetric: true,
		Payloads:  []PayloadKind{PayloadNote},
	},
	LinkAdjustedBy: {
		ParentTypes: []ArtifactType{
			ArtifactInvoice, ArtifactBill, ArtifactJournalEntry,
			ArtifactCostLot, ArtifactExpenseReport,
		},
		ChildTypes: []ArtifactType{ArtifactAdjustment, ArtifactJournalEntry},
		Payloads:   []PayloadKind{PayloadAppliedAmount, PayloadNote},
	},
}

// Valid reports whether the link type is part of the closed enumeration.
func (lt LinkType) Valid() bool {
	_, ok := compatibilityTable[lt]
	return ok
}

// Compatibility returns the static compatibility entry for the link type.
func (lt LinkType) Compatibility() (Compatibility, bool) {
	c, ok := compatibilityTable[lt]
	return c, ok
}

// Acyclic reports whether the link type expresses a directed derivation.
func (lt LinkType) Acyclic() bool {
	return compatibilityTable[lt].Acyclic
}

// Symmetric reports whether the link type has no parent/child direction.
func (lt LinkType) Symmetric() bool {
	return compatibilityTable[lt].Symmetric
}

// MaxChildren returns the per-parent child bound, zero meaning unbounded.
func (lt LinkType) MaxChildren() int {
	return compatibilityTable[lt].MaxChildren
}

// Allows reports whether the (parent, child) artifact type pairing is legal
// for this link type. An empty side of the compatibility entry accepts any
// artifact type.
func (lt LinkType) Allows(parent, child ArtifactType) bool {
	c, ok := compatibilityTable[lt]
	if !ok {
		return false
	}

	if len(c.ParentTypes) > 0 && !containsType(c.ParentTypes, parent) {
		return false
	}

	if len(c.ChildTypes) > 0 && !containsType(c.ChildTypes, child) {
		return false
	}

	return true
}

// AllowsPayload reports whether the payload kind is accepted by the link type.
// PayloadNone is accepted everywhere.
func (lt LinkType) AllowsPayload(kind PayloadKind) bool {
	if kind == PayloadNone {
		return true
	}

	c, ok := compatibilityTable[lt]
	if !ok {
		return false
	}

	for _, allowed := range c.Payloads {
		if allowed == kind {
			return true
		}
	}

	return false
}

func containsType(types []ArtifactType, t ArtifactType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}

	return false
}

// AcyclicLinkTypes returns every link type flagged acyclic, in stable order.
func AcyclicLinkTypes() []LinkType {
	return []LinkType{
		LinkFulfilledBy,
		LinkCorrectedBy,
		LinkConsumedBy,
		LinkSourcedFrom,
		LinkDerivedFrom,
	}
}
