package valuation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InsufficientInventoryError rejects a consumption that exceeds the total
// available quantity. Nothing is partially consumed.
type InsufficientInventoryError struct {
	ItemID    string
	Requested decimal.Decimal
	Available decimal.Decimal
}

// Error implements error.
func (e InsufficientInventoryError) Error() string {
	return fmt.Sprintf(
		"insufficient inventory for item %s: requested %s, available %s",
		e.ItemID, e.Requested, e.Available,
	)
}

// LotNotFoundError indicates the named lot does not exist.
type LotNotFoundError struct {
	LotID uuid.UUID
}

// Error implements error.
func (e LotNotFoundError) Error() string {
	return fmt.Sprintf("cost lot %s not found", e.LotID)
}

// LotDepletedError indicates the lot exists but has no remaining quantity.
type LotDepletedError struct {
	LotID uuid.UUID
}

// Error implements error.
func (e LotDepletedError) Error() string {
	return fmt.Sprintf("cost lot %s is fully depleted", e.LotID)
}

// LotInsufficientError indicates the lot exists but its remaining quantity
// cannot cover the request.
type LotInsufficientError struct {
	LotID     uuid.UUID
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

// Error implements error.
func (e LotInsufficientError) Error() string {
	return fmt.Sprintf(
		"cost lot %s has insufficient remaining quantity: requested %s, remaining %s",
		e.LotID, e.Requested, e.Remaining,
	)
}

// StandardCostNotFoundError indicates no standard cost is registered for the
// item.
type StandardCostNotFoundError struct {
	ItemID string
}

// Error implements error.
func (e StandardCostNotFoundError) Error() string {
	return fmt.Sprintf("no standard cost registered for item %s", e.ItemID)
}
