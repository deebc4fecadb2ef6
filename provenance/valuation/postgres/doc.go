// Package postgres persists cost lots in PostgreSQL. Lots are append-only
// rows; remaining quantities are never stored here because the valuation
// engine derives them from consumed_by edges in the link graph.
package postgres
