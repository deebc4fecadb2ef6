// Package correction implements cascading reversal: it builds inspectable
// unwind plans by traversing the link graph downstream from a root artifact,
// generates compensating entries that mirror originally posted lines, and
// executes plans by writing those entries and recording corrected_by edges.
//
// State machine over a plan:
//
//	built (DRY_RUN is terminal, analysis-only) -> executed | rejected
//
// The engine never touches posting storage directly; it depends on three
// injected collaborators: a prior-postings lookup, a ledger writer, and a
// period authority.
package correction
