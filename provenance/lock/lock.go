package lock

import (
	"context"
	"errors"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

var (
	// ErrEmptyKey is returned when an empty lock key is provided.
	ErrEmptyKey = errors.New("lock key cannot be empty")
	// ErrNilFn is returned when a nil function is passed to WithLock.
	ErrNilFn = errors.New("lock function is nil")
)

// PairLocker runs a function while holding a mutual-exclusion lock on a key.
// The lock is released when the function returns, even on failure.
//
//go:generate mockgen --destination=lock_mock.go --package=lock . PairLocker
type PairLocker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// EdgeKey returns the lock key covering one (type, parent, child) edge.
func EdgeKey(edge link.EconomicLink) string {
	return "provenance:edge:" + edge.Key()
}
