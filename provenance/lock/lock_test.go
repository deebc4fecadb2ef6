package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/link"
)

func TestEdgeKey(t *testing.T) {
	t.Parallel()

	invoice, err := link.NewArtifactRef(link.ArtifactInvoice, uuid.New())
	require.NoError(t, err)

	payment, err := link.NewArtifactRef(link.ArtifactPayment, uuid.New())
	require.NoError(t, err)

	edge, err := link.NewEconomicLink(link.LinkPaidBy, invoice, payment, uuid.New(), nil)
	require.NoError(t, err)

	key := EdgeKey(edge)
	assert.Equal(t, "provenance:edge:"+edge.Key(), key)
	assert.Contains(t, key, invoice.String())
	assert.Contains(t, key, payment.String())
}

func TestLocalLockerValidation(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	ctx := context.Background()

	err := locker.WithLock(ctx, "key", nil)
	require.ErrorIs(t, err, ErrNilFn)

	err = locker.WithLock(ctx, "  ", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestLocalLockerPropagatesFnError(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "key", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	// The key is released after the failure.
	err = locker.WithLock(context.Background(), "key", func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestLocalLockerSerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	ctx := context.Background()

	const goroutines = 50

	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := locker.WithLock(ctx, "edge:same", func(context.Context) error {
				// Unsynchronized read-modify-write; only the lock makes it safe.
				current := counter
				time.Sleep(time.Microsecond)
				counter = current + 1

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestLocalLockerReleasesEntries(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		err := locker.WithLock(ctx, "edge:transient", func(context.Context) error { return nil })
		require.NoError(t, err)
	}

	locker.mu.Lock()
	defer locker.mu.Unlock()

	assert.Empty(t, locker.held)
}

func TestRedisLockerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRedisLocker(nil)
	require.ErrorIs(t, err, ErrNilClient)
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{name: "defaults valid", mutate: func(*Options) {}},
		{name: "zero expiry", mutate: func(o *Options) { o.Expiry = 0 }, wantErr: ErrExpiryInvalid},
		{name: "zero tries", mutate: func(o *Options) { o.Tries = 0 }, wantErr: ErrTriesInvalid},
		{name: "too many tries", mutate: func(o *Options) { o.Tries = maxTries + 1 }, wantErr: ErrTriesInvalid},
		{name: "negative retry delay", mutate: func(o *Options) { o.RetryDelay = -time.Second }, wantErr: ErrRetryDelayNegative},
		{name: "drift factor out of range", mutate: func(o *Options) { o.DriftFactor = 1 }, wantErr: ErrDriftFactorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
		})
	}
}
