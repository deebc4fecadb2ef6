package lock

import (
	"context"
	"strings"
	"sync"
)

// LocalLocker is a process-local PairLocker keyed by lock key. Entries are
// reference-counted and removed when the last waiter releases, so the map
// does not grow with the number of distinct keys ever locked.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localEntry
}

type localEntry struct {
	mu   sync.Mutex
	refs int
}

// compile-time interface assertion
var _ PairLocker = (*LocalLocker)(nil)

// NewLocalLocker creates an empty process-local locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localEntry)}
}

// WithLock implements PairLocker.
func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilFn
	}

	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	l.mu.Lock()

	entry, ok := l.held[key]
	if !ok {
		entry = &localEntry{}
		l.held[key] = entry
	}

	entry.refs++

	l.mu.Unlock()

	entry.mu.Lock()

	defer func() {
		entry.mu.Unlock()

		l.mu.Lock()

		entry.refs--
		if entry.refs == 0 {
			delete(l.held, key)
		}

		l.mu.Unlock()
	}()

	return fn(ctx)
}
