// Package postgres manages the shared PostgreSQL connection used by the
// durable edge and lot repositories. It opens primary and read-replica pools
// through a round-robin resolver, applies pending schema migrations on
// connect, and sanitizes credentials out of connection errors before they
// reach logs.
package postgres
