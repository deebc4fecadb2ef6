package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/log"
)

const maxTries = 1000

var (
	// ErrNilClient is returned when the locker is built without a redis client.
	ErrNilClient = errors.New("redis client is required")
	// ErrExpiryInvalid is returned when lock expiry is not positive.
	ErrExpiryInvalid = errors.New("lock expiry must be greater than 0")
	// ErrTriesInvalid is returned when lock tries is outside [1, 1000].
	ErrTriesInvalid = errors.New("lock tries must be between 1 and 1000")
	// ErrRetryDelayNegative is returned when retry delay is negative.
	ErrRetryDelayNegative = errors.New("lock retry delay cannot be negative")
	// ErrDriftFactorInvalid is returned when drift factor is outside [0, 1).
	ErrDriftFactorInvalid = errors.New("lock drift factor must be between 0 (inclusive) and 1 (exclusive)")
)

// Options configures acquisition behavior of the Redis locker.
type Options struct {
	// Expiry is how long the lock is held before auto-expiring, bounding the
	// damage of a crashed holder.
	Expiry time.Duration
	// Tries is the number of acquisition attempts before giving up.
	Tries int
	// RetryDelay is the delay between attempts.
	RetryDelay time.Duration
	// DriftFactor accounts for clock drift across Redis nodes.
	DriftFactor float64
}

// DefaultOptions returns acquisition defaults tuned for edge establishment:
// short critical sections and modest contention on any single pair.
func DefaultOptions() Options {
	return Options{
		Expiry:      10 * time.Second,
		Tries:       3,
		RetryDelay:  500 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

func (o Options) validate() error {
	if o.Expiry <= 0 {
		return ErrExpiryInvalid
	}

	if o.Tries < 1 || o.Tries > maxTries {
		return ErrTriesInvalid
	}

	if o.RetryDelay < 0 {
		return ErrRetryDelayNegative
	}

	if o.DriftFactor < 0 || o.DriftFactor >= 1 {
		return ErrDriftFactorInvalid
	}

	return nil
}

// RedisLocker is a PairLocker coordinating across service instances through
// the RedLock algorithm.
type RedisLocker struct {
	redsync *redsync.Redsync
	options Options
	logger  log.Logger
}

// compile-time interface assertion
var _ PairLocker = (*RedisLocker)(nil)

// RedisLockerOption configures optional RedisLocker collaborators.
type RedisLockerOption func(*RedisLocker)

// WithLogger sets the structured logger used by the locker.
func WithLogger(logger log.Logger) RedisLockerOption {
	return func(l *RedisLocker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithOptions overrides the acquisition defaults.
func WithOptions(options Options) RedisLockerOption {
	return func(l *RedisLocker) {
		l.options = options
	}
}

// NewRedisLocker creates a locker backed by the given client.
func NewRedisLocker(client goredislib.UniversalClient, opts ...RedisLockerOption) (*RedisLocker, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	locker := &RedisLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		options: DefaultOptions(),
		logger:  log.NewNop(),
	}

	for _, opt := range opts {
		opt(locker)
	}

	if err := locker.options.validate(); err != nil {
		return nil, err
	}

	return locker, nil
}

// WithLock implements PairLocker. The lock is released when fn returns; a
// failed release is logged but does not mask fn's result because the expiry
// reclaims the lock regardless.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilFn
	}

	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	safeKey := safeKeyForLogs(key)

	mutex := l.redsync.NewMutex(
		key,
		redsync.WithExpiry(l.options.Expiry),
		redsync.WithTries(l.options.Tries),
		redsync.WithRetryDelay(l.options.RetryDelay),
		redsync.WithDriftFactor(l.options.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		l.logger.Log(ctx, log.LevelError, "failed to acquire lock", log.String("lock_key", safeKey), log.Err(err))

		return fmt.Errorf("acquire lock %s: %w", safeKey, err)
	}

	l.logger.Log(ctx, log.LevelDebug, "lock acquired", log.String("lock_key", safeKey))

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			l.logger.Log(ctx, log.LevelError, "failed to release lock", log.String("lock_key", safeKey), log.Err(err))
		} else {
			l.logger.Log(ctx, log.LevelDebug, "lock released", log.String("lock_key", safeKey))
		}
	}()

	return fn(ctx)
}

// safeKeyForLogs quotes and truncates a lock key before it reaches a log line.
func safeKeyForLogs(key string) string {
	const maxLogLength = 128

	safe := strconv.QuoteToASCII(key)
	if len(safe) <= maxLogLength {
		return safe
	}

	return safe[:maxLogLength] + "...(truncated)"
}
