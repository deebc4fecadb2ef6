// Package postgres persists the edge set in PostgreSQL. The uniqueness of the
// (type, parent, child) key is enforced by a database constraint, so two
// writers racing to establish the same relationship cannot both succeed; the
// loser surfaces the duplicate to the graph store, which re-queries and
// applies its duplicate semantics.
package postgres
