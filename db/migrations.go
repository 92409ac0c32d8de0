package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var fs embed.FS

func newMigrate(dsn string) (*migrate.Migrate, error) {
	dir, databaseURL := "migrations/sqlite", "sqlite://"+dsn
	if IsPostgres(dsn) {
		dir, databaseURL = "migrations/postgres", dsn
	}

	// Create a new source instance using the embedded migrations
	d, err := iofs.New(fs, dir)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("error creating migrate instance: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations for the database behind dsn
func Migrate(dsn string) error {
	log.Info("Running migrations")
	m, err := newMigrate(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration error: %w", err)
	}

	version, _, _ := m.Version()
	log.WithField("version", version).Info("Database is up to date")
	return nil
}

// Rollback reverts the most recently applied migration
func Rollback(dsn string) error {
	log.Info("Rolling back last migration")
	m, err := newMigrate(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("rollback error: %w", err)
	}
	return nil
}
