package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrateUp applies all pending migrations from migrationsDir. A database
// already at the latest version is not an error.
func MigrateUp(connString, migrationsDir string) error {
	m, closer, err := newMigrate(connString, migrationsDir)
	if err != nil {
		return err
	}
	defer closer()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(connString, migrationsDir string) error {
	m, closer, err := newMigrate(connString, migrationsDir)
	if err != nil {
		return err
	}
	defer closer()

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate down: %w", err)
	}
	return nil
}

// MigrateVersion reports the current schema version and dirty state.
// A never-migrated database reports version 0.
func MigrateVersion(connString, migrationsDir string) (uint, bool, error) {
	m, closer, err := newMigrate(connString, migrationsDir)
	if err != nil {
		return 0, false, err
	}
	defer closer()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db: migrate version: %w", err)
	}
	return version, dirty, nil
}

func newMigrate(connString, migrationsDir string) (*migrate.Migrate, func(), error) {
	if connString == "" {
		return nil, nil, fmt.Errorf("db: empty connection string")
	}
	if migrationsDir == "" {
		return nil, nil, fmt.Errorf("db: empty migrations dir")
	}

	sqlDB, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, nil, fmt.Errorf("db: open for migration: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{})
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("db: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "pgx", driver)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("db: migration source: %w", err)
	}

	return m, func() { sqlDB.Close() }, nil
}
