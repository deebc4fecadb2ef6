package link

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PayloadKind discriminates the closed set of edge payload variants.
type PayloadKind string

const (
	// PayloadNone marks the absence of a payload.
	PayloadNone PayloadKind = ""
	// PayloadAppliedAmount carries the value applied by a settlement or allocation edge.
	PayloadAppliedAmount PayloadKind = "applied_amount"
	// PayloadConsumption carries the quantity and cost drawn from a cost lot.
	PayloadConsumption PayloadKind = "consumption"
	// PayloadCorrectionInfo carries the context of a corrected_by edge.
	PayloadCorrectionInfo PayloadKind = "correction_info"
	// PayloadNote carries a free-text annotation.
	PayloadNote PayloadKind = "note"
)

// Payload is a closed variant attached to an edge. Each variant validates its
// own fields so a malformed payload fails the write instead of silently
// vanishing from a later sum.
type Payload interface {
	Kind() PayloadKind
	Validate() error
}

// ValueField selects the numeric fact extracted from a payload when the graph
// derives consumption sums.
type ValueField string

const (
	// ValueAmount selects AppliedAmount.Amount.
	ValueAmount ValueField = "amount"
	// ValueCostConsumed selects Consumption.CostConsumed.
	ValueCostConsumed ValueField = "cost_consumed"
	// ValueQuantity selects Consumption.Quantity.
	ValueQuantity ValueField = "quantity"
)

// AppliedAmount records the value a child edge applies against its parent,
// e.g. the portion of an invoice settled by one payment.
type AppliedAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Kind implements Payload.
func (p AppliedAmount) Kind() PayloadKind { return PayloadAppliedAmount }

// Validate implements Payload.
func (p AppliedAmount) Validate() error {
	if !p.Amount.IsPositive() {
		return NewDomainError(ErrorInvalidPayload, "amount", "applied amount must be greater than zero")
	}

	if strings.TrimSpace(p.Currency) == "" {
		return NewDomainError(ErrorInvalidPayload, "currency", "currency is required")
	}

	return nil
}

// Consumption records the quantity and cost a consuming artifact drew from a
// cost lot. CostConsumed is the fact summed by the valuation engine.
type Consumption struct {
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	CostConsumed decimal.Decimal `json:"costConsumed"`
}

// Kind implements Payload.
func (p Consumption) Kind() PayloadKind { return PayloadConsumption }

// Validate implements Payload.
func (p Consumption) Validate() error {
	if !p.Quantity.IsPositive() {
		return NewDomainError(ErrorInvalidPayload, "quantity", "consumed quantity must be greater than zero")
	}

	if p.UnitCost.IsNegative() {
		return NewDomainError(ErrorInvalidPayload, "unitCost", "unit cost cannot be negative")
	}

	if p.CostConsumed.IsNegative() {
		return NewDomainError(ErrorInvalidPayload, "costConsumed", "consumed cost cannot be negative")
	}

	return nil
}

// CorrectionInfo records why and how a corrected_by edge was established.
type CorrectionInfo struct {
	CorrectionType string `json:"correctionType"`
	Depth          int    `json:"depth"`
	Actor          string `json:"actor"`
	PlanSize       int    `json:"planSize"`
}

// Kind implements Payload.
func (p CorrectionInfo) Kind() PayloadKind { return PayloadCorrectionInfo }

// Validate implements Payload.
func (p CorrectionInfo) Validate() error {
	if strings.TrimSpace(p.CorrectionType) == "" {
		return NewDomainError(ErrorInvalidPayload, "correctionType", "correction type is required")
	}

	if p.Depth < 0 {
		return NewDomainError(ErrorInvalidPayload, "depth", "depth cannot be negative")
	}

	if strings.TrimSpace(p.Actor) == "" {
		return NewDomainError(ErrorInvalidPayload, "actor", "actor is required")
	}

	if p.PlanSize < 1 {
		return NewDomainError(ErrorInvalidPayload, "planSize", "plan size must be at least one")
	}

	return nil
}

// Note is a free-text annotation for edges that carry no numeric fact.
type Note struct {
	Text string `json:"text"`
}

// Kind implements Payload.
func (p Note) Kind() PayloadKind { return PayloadNote }

// Validate implements Payload.
func (p Note) Validate() error {
	if strings.TrimSpace(p.Text) == "" {
		return NewDomainError(ErrorInvalidPayload, "text", "note text is required")
	}

	return nil
}

// PayloadValue extracts the numeric fact selected by field from a payload.
// The second return is false when the payload does not carry that field; the
// caller treats such edges as contributing nothing to a sum.
func PayloadValue(p Payload, field ValueField) (decimal.Decimal, bool) {
	switch payload := p.(type) {
	case AppliedAmount:
		if field == ValueAmount {
			return payload.Amount, true
		}
	case Consumption:
		switch field {
		case ValueCostConsumed:
			return payload.CostConsumed, true
		case ValueQuantity:
			return payload.Quantity, true
		}
	}

	return decimal.Decimal{}, false
}

// DecodePayload reconstructs the payload variant named by kind from its JSON
// encoding. An empty kind means no payload. The decoded value is validated so
// a corrupted row fails the read instead of flowing into a sum.
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	if kind == PayloadNone {
		return nil, nil
	}

	var payload Payload

	switch kind {
	case PayloadAppliedAmount:
		var p AppliedAmount
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode applied_amount payload: %w", err)
		}

		payload = p
	case PayloadConsumption:
		var p Consumption
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode consumption payload: %w", err)
		}

		payload = p
	case PayloadCorrectionInfo:
		var p CorrectionInfo
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode correction_info payload: %w", err)
		}

		payload = p
	case PayloadNote:
		var p Note
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode note payload: %w", err)
		}

		payload = p
	default:
		return nil, fmt.Errorf("unknown payload kind %q", string(kind))
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return payload, nil
}
