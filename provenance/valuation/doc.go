// Package valuation implements cost-lot lifecycle and FIFO / LIFO / specific /
// standard costing, expressed purely in terms of link graph queries: a lot's
// remaining quantity is always derived from its consumed_by edges, never
// stored as a running balance.
//
// Core flow:
//   - CreateLot validates and persists a lot and records its sourced_from edge.
//   - AvailableLayers derives each lot's remaining quantity and value.
//   - ConsumeFIFO / ConsumeLIFO / ConsumeSpecific / ConsumeAtStandard draw
//     value from lots and append one consumed_by edge per touched lot.
//
// Every amount is an arbitrary-precision decimal; rounding happens only at the
// money-formatting boundary, never mid-calculation.
package valuation
