package repositories

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockID guards against two instances migrating at once.
const advisoryLockID = 8412790356

func acquireAdvisoryLock(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID)
	if err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}

func releaseAdvisoryLock(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID)
	if err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}

func createMigrator(pool *pgxpool.Pool) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source driver: %w", err)
	}

	dbURL := pool.Config().ConnString()
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, "pgx5://"+dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// MigrateUp applies all pending schema migrations, serialized across
// instances by a postgres advisory lock.
func MigrateUp(ctx context.Context, pool *pgxpool.Pool) error {
	if err := acquireAdvisoryLock(ctx, pool); err != nil {
		return err
	}
	defer releaseAdvisoryLock(ctx, pool)

	m, err := createMigrator(pool)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations up: %w", err)
	}

	return nil
}

// MigrateDown rolls everything back. Used by operators, never at boot.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	if err := acquireAdvisoryLock(ctx, pool); err != nil {
		return err
	}
	defer releaseAdvisoryLock(ctx, pool)

	m, err := createMigrator(pool)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations down: %w", err)
	}

	return nil
}
