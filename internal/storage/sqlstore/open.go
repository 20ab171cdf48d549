package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"feed_updater/internal/config"
	"feed_updater/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = domain.ErrNotFound

func init() {
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// Open connects to the configured database and applies pending migrations.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.Driver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if err := Migrate(cfg); err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(time.Hour)
	default:
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
	}

	return db, nil
}

// Checkpoint folds the SQLite write-ahead log back into the main database
// file. It is a no-op for other drivers.
func Checkpoint(ctx context.Context, db *sqlx.DB) error {
	if db.DriverName() != config.DriverSQLite {
		return nil
	}
	if _, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	return nil
}
