// Package migrate applies the routing service schema. Core migrations
// are portable SQL shared by PostgreSQL and SQLite; driver-specific
// enhancements (identity sequences, JSONB indexes, PRAGMAs) live in
// db-specific files applied after the core set.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql migrations/db-specific/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending migrations for the given database
// driver, then the driver-specific enhancements.
func RunMigrations(db *sql.DB, driver string) error {
	if driver != "postgres" && driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", driver)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}

	var databaseDriver database.Driver
	switch driver {
	case "postgres":
		databaseDriver, err = postgres.WithInstance(db, &postgres.Config{})
		if err != nil {
			return fmt.Errorf("failed to create postgres driver: %w", err)
		}
	case "sqlite":
		databaseDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to create sqlite driver: %w", err)
		}
	}

	m, err := migrate.NewWithInstance(
		"iofs", sourceDriver,
		driver, databaseDriver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if err != migrate.ErrNoChange {
			return fmt.Errorf("core migration failed: %w", err)
		}
	}

	if err := applyDatabaseSpecificMigrations(db, driver); err != nil {
		return fmt.Errorf("database-specific migrations failed: %w", err)
	}

	return nil
}

// applyDatabaseSpecificMigrations applies PostgreSQL or SQLite specific
// schema enhancements. These run on every invocation, outside the
// version table, so every statement in them must be idempotent.
//
// PostgreSQL gets identity sequences for the integer primary keys (the
// portable table definitions cannot declare SERIAL) and JSONB indexes.
// SQLite gets its connection PRAGMAs.
func applyDatabaseSpecificMigrations(db *sql.DB, driver string) error {
	var migrations []string

	switch driver {
	case "postgres":
		migrations = []string{
			"db-specific/000005_routing_postgres.up.sql",
		}
	case "sqlite":
		migrations = []string{
			"db-specific/000006_routing_sqlite.up.sql",
		}
	}

	for _, migrationFile := range migrations {
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + migrationFile)
		if err != nil {
			// If file doesn't exist, skip (some drivers may not have specific changes)
			continue
		}

		sql := string(sqlBytes)
		if _, err := db.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply %s: %w", migrationFile, err)
		}
	}

	return nil
}

// GetMigrationVersion returns the current migration version.
func GetMigrationVersion(db *sql.DB, driver string) (version uint, dirty bool, err error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to load migration source: %w", err)
	}

	var databaseDriver database.Driver
	switch driver {
	case "postgres":
		databaseDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite":
		databaseDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return 0, false, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance(
		"iofs", sourceDriver,
		driver, databaseDriver,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m.Version()
}
