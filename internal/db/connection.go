package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// golang-migrate expects dsn in format 'pgx5://...' only
var migrateScheme = strings.NewReplacer(
	"postgres://", "pgx5://",
	"postgresql://", "pgx5://",
)

// Run embedded migrations and return schema version after applying them
// dsn: database source name in format postgres://...
func Migrate(dsn string) (version uint, err error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return 0, err
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, migrateScheme.Replace(dsn))
	if err != nil {
		return 0, fmt.Errorf("error while preparing migrator. Err: %w", err)
	}
	defer func() {
		srcErr, dbErr := migrator.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("error while applying migrations. Err: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return 0, fmt.Errorf("error while reading schema version. Err: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty, fix it manually", version)
	}

	return version, nil
}

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cant initialize connection pool. Err: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database is not reachable. Err: %w", err)
	}

	return pool, nil
}

func ConnectAndMigrate(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if _, err := Migrate(dsn); err != nil {
		return nil, err
	}

	return Connect(ctx, dsn)
}
