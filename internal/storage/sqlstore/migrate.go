package sqlstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"feed_updater/internal/config"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Migrate brings the schema up to date on a dedicated connection, which is
// closed before returning.
func Migrate(cfg config.DatabaseConfig) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(cfg config.DatabaseConfig) error {
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

func newMigrator(cfg config.DatabaseConfig) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations/"+cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}

	var driver database.Driver
	switch cfg.Driver {
	case config.DriverPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.Driver, driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	return m, nil
}
