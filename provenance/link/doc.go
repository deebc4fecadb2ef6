// Package link defines the value types of the provenance graph: artifact
// references, link types with their compatibility rules, typed edge payloads,
// and the immutable EconomicLink edge record.
//
// Core flow:
//   - NewArtifactRef / ParseArtifactRef build validated artifact pointers.
//   - LinkType.Allows answers whether a (parent, child) pairing is legal.
//   - NewEconomicLink constructs a write-once edge or fails with a DomainError.
//
// Nothing in this package touches storage; every invariant is enforced at
// construction time so an invalid edge can never be persisted.
package link
