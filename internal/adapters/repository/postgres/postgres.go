// Package postgres implements the rating store on PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"

	"github.com/okian/prix/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// migrationLockID is the advisory lock that serializes migrations across
	// instances. 0x70726978 is "prix" in ASCII hex.
	migrationLockID             = 0x70726978
	migrationLockReleaseTimeout = 5 * time.Second
	versionTable                = "public.schema_version"
)

// Connect opens a pool and verifies the connection.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	log := logger.Get().Named("postgres")

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	log.Info(ctx, "database ssl mode", logger.String("sslmode", extractSSLMode(databaseURL)))

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info(ctx, "database connected",
		logger.Int("min_conns", int(poolCfg.MinConns)),
		logger.Int("max_conns", int(poolCfg.MaxConns)))
	return pool, nil
}

// Open connects, migrates the schema and returns a Store that owns the pool.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	store, err := New(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func extractSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "" {
		return "prefer (default)"
	}
	return mode
}

// RunMigrations applies the embedded migrations while holding an advisory lock.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	release, err := migrationLock(ctx, conn.Conn())
	if err != nil {
		return err
	}
	defer release()

	logger.Get().Named("postgres").Info(ctx, "running database migrations")
	return runMigrations(ctx, conn.Conn())
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, versionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	log := logger.Get().Named("postgres")
	if current, err := migrator.GetCurrentVersion(ctx); err != nil {
		log.Debug(ctx, "could not read schema version", logger.Error(err))
	} else {
		log.Info(ctx, "current schema version", logger.Int("version", int(current)))
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func migrationLock(ctx context.Context, conn *pgx.Conn) (func(), error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return func() {}, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			logger.Get().Named("postgres").Error(ctx, "failed to release migration lock", logger.Error(err))
		}
	}, nil
}
