// Package lock serializes concurrent attempts to establish the same edge.
// The database uniqueness constraint is the source of truth; the pair lock
// sits in front of it so racing writers queue instead of burning an insert
// and a re-query on the constraint violation.
//
// RedisLocker coordinates across service instances using the RedLock
// algorithm. LocalLocker covers single-process deployments and tests.
package lock
