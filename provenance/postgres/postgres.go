package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/limeypieface/finance-accounting-prototype-sub005/provenance/log"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	defaultMigrationsPath  = "migrations"
)

var (
	dsnCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	dsnPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	dbNamePattern         = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// Connection is the hub for the provenance database. It keeps one resolver
// over a primary pool and a read-replica pool; reads are balanced round-robin
// across replicas while writes always reach the primary.
type Connection struct {
	PrimaryDSN           string
	ReplicaDSN           string
	DatabaseName         string
	MigrationsPath       string
	AllowMultiStatements bool
	Logger               log.Logger
	MaxOpenConnections   int
	MaxIdleConnections   int

	resolver  dbresolver.DB
	connected bool
	mu        sync.RWMutex
}

func (c *Connection) initDefaults() {
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}

	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = defaultMaxOpenConns
	}

	if c.MaxIdleConnections <= 0 {
		c.MaxIdleConnections = defaultMaxIdleConns
	}

	if c.MigrationsPath == "" {
		c.MigrationsPath = defaultMigrationsPath
	}
}

// Connect opens both pools, runs pending migrations against the primary, and
// verifies connectivity with a ping. It is safe to call again after a
// failure; an existing resolver is closed before reconnecting.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

// connectLocked performs the actual connection. Caller holds c.mu.
func (c *Connection) connectLocked(ctx context.Context) error {
	c.initDefaults()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	if c.resolver != nil {
		if err := c.closeLocked(); err != nil {
			c.Logger.Log(ctx, log.LevelWarn, "failed to close previous connection before reconnect", log.Err(err))
		}
	}

	c.Logger.Log(ctx, log.LevelInfo, "connecting to primary and replica databases")

	primary, err := sql.Open("pgx", c.PrimaryDSN)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.Logger.Log(ctx, log.LevelError, "failed to open primary database", log.String("error", sanitized))

		return fmt.Errorf("open primary database: %s", sanitized)
	}

	// Release partially opened pools if anything downstream fails.
	var success bool

	defer func() {
		if !success {
			primary.Close()
		}
	}()

	tunePool(primary, c.MaxOpenConnections, c.MaxIdleConnections)

	replica, err := sql.Open("pgx", c.ReplicaDSN)
	if err != nil {
		sanitized := sanitizeSensitiveError(err)
		c.Logger.Log(ctx, log.LevelError, "failed to open replica database", log.String("error", sanitized))

		return fmt.Errorf("open replica database: %s", sanitized)
	}

	defer func() {
		if !success {
			replica.Close()
		}
	}()

	tunePool(replica, c.MaxOpenConnections, c.MaxIdleConnections)

	resolver, err := newResolver(primary, replica)
	if err != nil {
		c.Logger.Log(ctx, log.LevelError, "failed to create resolver", log.Err(err))
		return fmt.Errorf("create resolver: %w", err)
	}

	migrationsPath, err := sanitizePath(c.MigrationsPath)
	if err != nil {
		c.Logger.Log(ctx, log.LevelError, "failed to resolve migrations path", log.Err(err))
		return err
	}

	if err := runMigrations(ctx, primary, migrationsPath, c.DatabaseName, c.AllowMultiStatements, c.Logger); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before ping: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		c.Logger.Log(ctx, log.LevelError, "failed to ping database", log.Err(err))
		return fmt.Errorf("ping database: %w", err)
	}

	c.resolver = resolver
	c.connected = true

	c.Logger.Log(ctx, log.LevelInfo, "connected to postgres", log.String("database", c.DatabaseName))

	success = true

	return nil
}

// DB returns the resolver, connecting lazily on first use.
func (c *Connection) DB(ctx context.Context) (dbresolver.DB, error) {
	c.mu.RLock()

	if c.resolver != nil {
		db := c.resolver
		c.mu.RUnlock()

		return db, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if c.resolver != nil {
		return c.resolver, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.resolver, nil
}

// Close releases both pools.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.resolver == nil {
		return nil
	}

	err := c.resolver.Close()
	c.resolver = nil
	c.connected = false

	return err
}

// IsConnected reports whether the resolver is initialized.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected
}

func tunePool(db *sql.DB, maxOpen, maxIdle int) {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
}

func newResolver(primary, replica *sql.DB) (_ dbresolver.DB, err error) {
	// dbresolver.New panics on invalid input instead of returning an error.
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("create resolver: %v", recovered)
		}
	}()

	resolver := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)

	if resolver == nil {
		return nil, errors.New("resolver returned nil connection")
	}

	return resolver, nil
}

// sanitizeSensitiveError strips credentials out of a connection error before
// it reaches a log line or a wrapped error.
func sanitizeSensitiveError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := dsnCredentialsPattern.ReplaceAllString(err.Error(), "://***@")
	sanitized = dsnPasswordPattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}

// sanitizePath rejects parent-directory traversal and resolves the path.
func sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("invalid migrations path: %q", path)
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	return absPath, nil
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("invalid database name: %q", name)
	}

	return nil
}

func runMigrations(ctx context.Context, primary *sql.DB, migrationsPath, dbName string, allowMultiStatements bool, logger log.Logger) error {
	if err := validateDBName(dbName); err != nil {
		logger.Log(ctx, log.LevelError, "invalid database name", log.Err(err))
		return err
	}

	sourceURL, err := url.Parse(filepath.ToSlash(migrationsPath))
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to parse migrations url", log.Err(err))
		return fmt.Errorf("parse migrations url: %w", err)
	}

	sourceURL.Scheme = "file"

	driver, err := migratepg.WithInstance(primary, &migratepg.Config{
		MultiStatementEnabled: allowMultiStatements,
		DatabaseName:          dbName,
		SchemaName:            "public",
	})
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to create postgres driver instance", log.Err(err))
		return fmt.Errorf("create postgres driver instance: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL.String(), dbName, driver)
	if err != nil {
		logger.Log(ctx, log.LevelError, "failed to create migration instance", log.Err(err))
		return fmt.Errorf("create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Log(ctx, log.LevelInfo, "no new migrations found")
			return nil
		}

		if errors.Is(err, os.ErrNotExist) {
			logger.Log(ctx, log.LevelWarn, "no migration files found, skipping migration step")
			return nil
		}

		var dirtyErr migrate.ErrDirty
		if errors.As(err, &dirtyErr) {
			logger.Log(ctx, log.LevelError, "migration left database dirty", log.Int("version", dirtyErr.Version))
			return fmt.Errorf("migration failed: dirty database version %d", dirtyErr.Version)
		}

		logger.Log(ctx, log.LevelError, "migration failed", log.Err(err))

		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
