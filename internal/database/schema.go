package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// One directory per driver, named after the database/sql driver.
//
//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// ApplySchema brings db up to the latest embedded migration for driver.
// Running it on an up-to-date database is a no-op. db stays open and usable
// afterwards.
func ApplySchema(ctx context.Context, db *sql.DB, driver string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("migrations for driver %q: %w", driver, err)
	}

	drv, release, err := migrationDriver(ctx, db, driver)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	defer release()

	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	defer src.Close()

	stop := context.AfterFunc(ctx, func() { m.GracefulStop <- true })
	defer stop()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrationDriver wraps db for golang-migrate. Closing the migrate driver
// would close the pool, so the caller gets a release func that never does.
func migrationDriver(ctx context.Context, db *sql.DB, driver string) (migratedb.Driver, func(), error) {
	switch driver {
	case DriverMySQL:
		// A dedicated connection: Close on it returns the conn to the pool.
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		drv, err := migratemysql.WithConnection(ctx, conn, &migratemysql.Config{})
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return drv, func() { _ = drv.Close() }, nil
	case DriverSQLite:
		drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return nil, nil, err
		}
		return drv, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", driver)
	}
}
